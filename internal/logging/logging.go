// Package logging configures zerolog for the scanner and daemon and holds
// the event helpers shared by the pipeline, the risk engine and providers.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "alphahunter", "logs", "hunter.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLogger creates a new logger with default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig builds a logger writing to stderr, a rotated file, or
// both. With neither enabled the logger discards everything.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "01-02 15:04:05",
			NoColor:    os.Getenv("NO_COLOR") != "",
		})
	}
	if w := fileWriter(cfg); w != nil {
		writers = append(writers, w)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	return zerolog.New(combine(writers)).With().Timestamp().Logger()
}

// fileWriter returns the rotating file sink, or nil when file logging is off
// or the log directory cannot be created.
func fileWriter(cfg LogConfig) io.Writer {
	if !cfg.File || cfg.FilePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}
}

func combine(writers []io.Writer) io.Writer {
	switch len(writers) {
	case 0:
		return io.Discard
	case 1:
		return writers[0]
	}
	return zerolog.MultiLevelWriter(writers...)
}

// parseLevel falls back to info for unknown or empty levels.
func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// WithOperation adds an operation name to the logger context.
func WithOperation(logger zerolog.Logger, operation string) zerolog.Logger {
	return logger.With().Str("operation", operation).Logger()
}

// WithScan tags every event with the scan ID.
func WithScan(logger zerolog.Logger, scanID string) zerolog.Logger {
	return logger.With().Str("scan_id", scanID).Logger()
}

// LogSignal logs a graded candidate.
func LogSignal(logger zerolog.Logger, symbol, grade string, score float64, quantity int) {
	logger.Info().
		Str("event", "signal").
		Str("symbol", symbol).
		Str("grade", grade).
		Float64("score", score).
		Int("quantity", quantity).
		Msg("Candidate graded")
}

// LogStageDrop logs a symbol removed by a pipeline stage.
func LogStageDrop(logger zerolog.Logger, stage, symbol, reason string) {
	logger.Debug().
		Str("event", "stage_drop").
		Str("stage", stage).
		Str("symbol", symbol).
		Str("reason", reason).
		Msg("Candidate dropped")
}

// LogExit logs an exit signal.
func LogExit(logger zerolog.Logger, symbol, reason string, price, pnlPct float64, authoritative bool) {
	event := logger.Info()
	if authoritative {
		event = logger.Warn()
	}
	event.
		Str("event", "exit").
		Str("symbol", symbol).
		Str("reason", reason).
		Float64("price", price).
		Float64("pnl_pct", pnlPct).
		Bool("authoritative", authoritative).
		Msg("Exit signal")
}

// LogTrade logs a closed trade.
func LogTrade(logger zerolog.Logger, symbol string, qty int, entry, exit, pnlPct float64) {
	logger.Info().
		Str("event", "trade").
		Str("symbol", symbol).
		Int("quantity", qty).
		Float64("entry", entry).
		Float64("exit", exit).
		Float64("pnl_pct", pnlPct).
		Msg("Trade recorded")
}

// LogProviderCall logs a market data call.
func LogProviderCall(logger zerolog.Logger, op, symbol string, duration time.Duration, err error) {
	event := logger.Debug().
		Str("event", "provider_call").
		Str("op", op).
		Str("symbol", symbol).
		Dur("duration", duration)

	if err != nil {
		event.Err(err).Msg("Provider call failed")
	} else {
		event.Msg("Provider call completed")
	}
}
