// Package identity abstracts the hosted identity platform that stores
// per-user custom claims, the third source of truth for premium status.
//
// The Provider interface covers user lookup by UID or email and writing
// custom claims back after reconciliation. NewAdminClient talks to the
// platform's admin REST API; NewMemoryProvider backs tests and local
// development.
//
// TokenService mints short-lived signed entitlement tokens carrying the
// premium claims, letting downstream chat services authorize requests
// without re-querying any source of truth.
package identity
