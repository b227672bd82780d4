// Package limiters implements the Redis-backed failed-attempt tracker used
// for brute-force lockout.
package limiters
