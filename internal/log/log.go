// Package log provides structured, leveled logging for walletbridge.
package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance, written to stdout until Init reconfigures it.
var Logger zerolog.Logger

// Component loggers for the major subsystems.
var (
	Chain    zerolog.Logger
	Wallet   zerolog.Logger
	RPC      zerolog.Logger
	Capture  zerolog.Logger
	Browser  zerolog.Logger
	Workflow zerolog.Logger
	Probe    zerolog.Logger
	Audit    zerolog.Logger
)

func init() {
	Logger = NewConsoleLogger(os.Stdout, "info")
	initComponentLoggers()
}

// Init reconfigures the global and component loggers. When file is non-empty,
// logs are written to both the console (colored) and the file (always JSON,
// so the session log directory stays machine-parseable).
func Init(level string, file string) error {
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		lvl := parseLevel(level)
		console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05", NoColor: false}
		multi := zerolog.MultiLevelWriter(console, f)
		Logger = zerolog.New(multi).Level(lvl).With().Timestamp().Logger()
	} else {
		Logger = NewConsoleLogger(os.Stdout, level)
	}
	initComponentLoggers()
	return nil
}

// NewConsoleLogger creates a colored console logger at the given level.
func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05", NoColor: false}
	return zerolog.New(output).Level(parseLevel(level)).With().Timestamp().Logger()
}

func initComponentLoggers() {
	Chain = Logger.With().Str("component", "chain").Logger()
	Wallet = Logger.With().Str("component", "wallet").Logger()
	RPC = Logger.With().Str("component", "rpc").Logger()
	Capture = Logger.With().Str("component", "capture").Logger()
	Browser = Logger.With().Str("component", "browser").Logger()
	Workflow = Logger.With().Str("component", "workflow").Logger()
	Probe = Logger.With().Str("component", "probe").Logger()
	Audit = Logger.With().Str("component", "audit").Logger()
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
