// Package httpapi exposes the identity engine over a JSON HTTP surface.
//
// Routes live under /api/v1. Token transport is dual: every login-shaped
// response returns the pair in the JSON body and also sets the HTTP-only
// session cookies, so browser and non-browser clients use the same endpoints.
package httpapi
