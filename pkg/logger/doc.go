// Package logger builds the application slog.Logger.
//
// The factory wires format, level, static attributes, and per-call context
// extractors so request-scoped values (request IDs, task IDs) show up on
// every record without each call site passing them.
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "premium"),
//		logger.WithContextValue("request_id", requestIDKey),
//	)
//	slog.SetDefault(log)
package logger
