package notifier

import "errors"

var (
	ErrInvalidConfig     = errors.New("notifier.errors.invalid_config")
	ErrFailedToSendAlert = errors.New("notifier.errors.failed_to_send_alert")
)
