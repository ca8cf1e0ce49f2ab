package obs

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogConfig controls logger initialization.
type LogConfig struct {
	Level     string // "debug", "info", "warn", "error"
	Format    string // "json" or "console"
	Component string
}

var (
	loggerMu sync.RWMutex
	logger   = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// InitLogger configures zerolog globals and returns the base logger used across the service.
func InitLogger(cfg LogConfig) zerolog.Logger {
	return InitLoggerTo(cfg, os.Stdout)
}

// InitLoggerTo is InitLogger with an explicit destination.
func InitLoggerTo(cfg LogConfig, out io.Writer) zerolog.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	builder := zerolog.New(out).With().Timestamp()
	if c := strings.TrimSpace(cfg.Component); c != "" {
		builder = builder.Str("component", c)
	}
	logger = builder.Logger()
	log.Logger = logger
	return logger
}

// Logger returns the shared structured logger.
func Logger() *zerolog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	l := logger
	return &l
}

// Component returns a child logger tagged with the given component name.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	case "trace":
		return zerolog.TraceLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		fmt.Fprintf(os.Stderr, "obs: invalid log level %q; using info\n", level)
		return zerolog.InfoLevel
	}
}
