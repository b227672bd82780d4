// Package stores implements the Redis-backed record stores of the identity
// engine: the single active refresh record per account with atomic rotation,
// and single-use confirmation key records with atomic consume.
package stores
