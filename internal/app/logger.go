package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Production deployments get JSON for
// the log pipeline; anything else gets the text handler. Source locations are
// always attached since access decisions need to be traceable to call sites.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}

	var handler slog.Handler
	if cfg != nil && (cfg.LogFormat == "json" || cfg.IsProduction()) {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
