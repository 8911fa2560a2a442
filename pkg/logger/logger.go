package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New строит корневой zerolog-логгер сервиса с уровнем из конфигурации.
func New(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	l := zerolog.New(os.Stdout).With().Timestamp().Logger()

	switch strings.ToLower(level) {
	case "debug":
		return l.Level(zerolog.DebugLevel)
	case "warn":
		return l.Level(zerolog.WarnLevel)
	case "error":
		return l.Level(zerolog.ErrorLevel)
	default:
		return l.Level(zerolog.InfoLevel)
	}
}
