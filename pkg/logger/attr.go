package logger

import "log/slog"

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Email records a customer email under the key "email".
func Email(email string) slog.Attr {
	if email == "" {
		return slog.Attr{}
	}
	return slog.String("email", email)
}

// TaskID records a reconciliation task identifier under the key "task_id".
func TaskID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("task_id", id)
}

// Source records the verification source that decided a verdict under the
// key "source".
func Source(src any) slog.Attr {
	if src == nil {
		return slog.Attr{}
	}
	return slog.Any("source", src)
}
