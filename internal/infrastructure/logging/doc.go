// Package logging provides structured logging for Tilt Logic Core.
//
// It wraps log/slog with configuration-driven format and level selection
// plus default service/version attributes on every record. Components
// derive child loggers via With:
//
//	log := logging.New(cfg.Logging, version)
//	showLog := log.With("component", "show")
package logging
