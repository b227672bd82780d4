// Package password implements argon2id credential hashing with PHC-formatted
// output strings and constant-time verification.
package password
