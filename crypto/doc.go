// Package crypto bundles the security primitives the engine is built on:
// Argon2id password hashing with PHC-encoded output, a password policy
// predicate, an AES-256-GCM cipher for data at rest, RFC 6238 TOTP code
// generation and verification, and secure random material for refresh
// tokens and backup codes.
//
// Nothing in this package touches storage or the network. Every function
// is deterministic given its inputs and the system clock, which keeps the
// primitives independently testable.
package crypto
