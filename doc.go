// Package authcore is an embeddable identity and session security core:
// password and TOTP authentication, JWT access tokens, rotating opaque
// refresh tokens with theft detection, and a tamper-evident audit trail.
//
// The package is transport-agnostic. Wire it behind any HTTP framework
// or RPC layer; the Engine only needs a UserStore implementation, a
// Redis client for refresh-token state, and an audit sink.
//
// Construct an Engine through the Builder:
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithUserStore(store).
//		WithRedis(client).
//		WithAuditSink(sink).
//		Build()
//
// All authentication failures visible to callers are uniform: wrong
// password, unknown email, and disabled accounts return the same
// ErrInvalidCredentials, and every security-relevant outcome is written
// to the hash-chained audit log before the call returns.
package authcore
