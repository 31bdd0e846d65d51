package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New creates a structured logger writing to the console and, when file is
// non-empty, to a rotating log file as well.
// app: application name (e.g., "beamdropd")
// level: one of "debug", "info", "warn", "error" (default: "info")
func New(app, level, file string) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: os.Stdout}

	var w io.Writer = console
	if file != "" {
		rotating := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    5,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
		w = zerolog.MultiLevelWriter(console, rotating)
	}

	return zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Str("app", app).
		Int("pid", os.Getpid()).
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
