// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level     string    // optional log level ("debug", "info", etc.)
	Output    io.Writer // optional writer, wins over File
	File      string    // optional path; rotated by size
	MaxSizeMB int       // rotation threshold for File, defaults to 10
	Service   string    // attached to every entry
	Version   string
}

var (
	once sync.Once
	base zerolog.Logger
	sink io.Closer
)

// Configure initialises the global logger exactly once. Later calls are
// ignored, so the daemon must call it before any component logs.
func Configure(cfg Config) {
	once.Do(func() {
		level := zerolog.InfoLevel
		if cfg.Level == "" {
			cfg.Level = os.Getenv("DUALCAP_LOG_LEVEL")
		}
		if cfg.Level != "" {
			if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
				level = parsed
			}
		}
		zerolog.SetGlobalLevel(level)
		zerolog.TimeFieldFormat = time.RFC3339

		writer := cfg.Output
		if writer == nil && cfg.File != "" {
			maxSize := cfg.MaxSizeMB
			if maxSize <= 0 {
				maxSize = 10
			}
			lj := &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    maxSize,
				MaxBackups: 1,
			}
			writer = lj
			sink = lj
		}
		if writer == nil {
			writer = os.Stderr
		}

		service := cfg.Service
		if service == "" {
			service = "dualcap"
		}

		base = zerolog.New(writer).With().
			Timestamp().
			Str("service", service).
			Str("version", cfg.Version).
			Logger()
	})
}

func logger() zerolog.Logger {
	Configure(Config{})
	return base
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str("component", component).Logger()
}

// Close releases the rotating file, if one was opened.
func Close() error {
	if sink == nil {
		return nil
	}
	return sink.Close()
}
