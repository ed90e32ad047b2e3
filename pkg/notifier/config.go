package notifier

// Config holds alert delivery configuration.
// Postmark tokens are optional so development environments can run with the
// no-op notifier; AlertEmail and SenderEmail are required once email
// alerting is enabled.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"ALERT_SENDER_EMAIL"`
	AlertEmail           string `env:"ALERT_RECIPIENT_EMAIL"`
}

// Enabled reports whether the config carries enough to send real alerts.
func (c Config) Enabled() bool {
	return c.PostmarkServerToken != "" && c.PostmarkAccountToken != ""
}
