// Package notifier delivers operational alerts for reconciliation tasks
// that exhausted their retry budget. Alerts go out as transactional emails
// through Postmark; a no-op implementation covers environments where
// alerting is not configured.
package notifier
