// Package verifier produces a single premium-eligibility verdict for an
// email by reconciling three independently-writable sources: the paid-emails
// document collection, the users collection, and the identity provider's
// custom claims, with the payment provider's live state as ground truth
// whenever a cached source carries a customer or subscription identifier.
//
// Each Verify call performs fresh lookups; the package holds no cache.
// Per-source failures are recorded in the verdict's diagnostics and never
// abort the remaining checks. Only when every source is unreachable does
// Verify fail, with ErrAllSourcesUnavailable, so callers can distinguish
// "not premium" from "cannot tell right now".
package verifier
