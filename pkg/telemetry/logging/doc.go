// Package logging configures structured logging on top of log/slog.
//
// New builds a JSON or text logger from configuration. The level can be
// changed at runtime with SetLevel, which the service uses when its
// configuration file is reloaded.
//
// Request-scoped loggers travel in the context:
//
//	ctx = logging.WithRequestID(ctx, id)
//	logging.FromContext(ctx).Info("admission denied", "policy", name)
package logging
