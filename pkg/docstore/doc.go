// Package docstore provides keyed access to the two document collections
// that cache premium-status state: "paid_emails", keyed by a normalized
// email key, and "users", queried by email.
//
// The package distinguishes a missing document (ErrNotFound) from one that
// exists with IsPremium=false; the verifier treats the latter as an explicit
// negative signal. A MongoDB-backed implementation is provided by NewMongoStore
// and an in-memory one by NewMemoryStore.
package docstore
