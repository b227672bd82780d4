// Package internal holds shared primitives for the identity engine: random
// token material, hashing, and wire encodings for refresh secrets and
// confirmation keys. Nothing in here is part of the public API.
package internal
