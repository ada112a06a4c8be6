// Package token implements the two token kinds the engine issues: short
// signed JWT access tokens (plus the signed MFA challenge token that
// bridges password login and second-factor confirmation) and long opaque
// refresh tokens tracked server side.
//
// Refresh tokens rotate: every use consumes the presented token and
// issues a successor in the same family. A consumed token presented
// again is treated as theft and revokes the entire family atomically.
package token
