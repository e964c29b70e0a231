// Package logger builds *slog.Logger instances from functional options and
// provides attribute helpers that keep key names consistent across packages.
//
// New wraps the chosen JSON or text handler in LogHandlerDecorator, which runs
// registered ContextExtractor callbacks on every record. WithTraceContext adds
// the OpenTelemetry trace and span IDs of the active span.
//
// # Usage
//
//	var cfg logger.Config
//	_ = config.Load(&cfg)
//
//	log := logger.New(logger.FromConfig(cfg), logger.WithTraceContext())
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "transition committed",
//	    logger.EntityType("documents"),
//	    logger.EntityID(doc.ID),
//	    logger.State(doc.Status),
//	)
//
// Error and Errors return an empty attribute for nil errors, so they can be
// passed without a nil check.
package logger
