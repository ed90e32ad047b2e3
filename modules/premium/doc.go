// Package premium mounts the premium-status subsystem as an HTTP module:
// on-demand eligibility verification, the reconciliation task queue, and
// the billing webhook intake that feeds it.
package premium
