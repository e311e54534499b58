package app

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger builds the process-wide slog.Logger. Production deployments set
// SCHOLA_LOG_FORMAT=json so the gateway's lines land in the aggregator as
// structured records; anything else gets the human-readable text handler.
func NewLogger(cfg *Config) *slog.Logger {
	return slog.New(newLogHandler(os.Stdout, cfg))
}

func newLogHandler(w io.Writer, cfg *Config) slog.Handler {
	opts := &slog.HandlerOptions{AddSource: true}
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
