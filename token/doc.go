// Package token implements the HS256 session-token codec: minting and parsing
// access and refresh tokens with distinct error kinds for expired, malformed,
// and signature-invalid input.
package token
