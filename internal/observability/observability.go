// Package observability wires structured logging and Prometheus
// metrics for the scheduler/pipeline binary, following the zerolog and
// prometheus/client_golang conventions used across the pack (the
// storage and ai-assistant services' main.go in particular).
package observability

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewLogger builds the process-wide zerolog.Logger, tagged with
// service and rendered as plain JSON in production or a console writer
// under ENV=development, matching the storage service's main.go.
func NewLogger(service, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if os.Getenv("ENV") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	return log.With().Str("service", service).Logger()
}
