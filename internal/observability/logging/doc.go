// Package logging builds the process loggers on log/slog and carries a
// logger through context.
//
//	logger := logging.NewLogger()
//	ctx = logging.WithLogger(ctx, logger)
//	logging.WithTraceID(ctx, logging.FromContext(ctx)).Info("fetch started")
package logging
