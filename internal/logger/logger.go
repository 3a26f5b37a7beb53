package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds the service logger. LOG_LEVEL picks the level and LOG_FORMAT=text
// switches from JSON to human-readable output for local runs.
func New() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT"))) {
	case "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	l.SetLevel(ParseLevel(os.Getenv("LOG_LEVEL")))
	return l
}

// ParseLevel maps a LOG_LEVEL value to a logrus level, defaulting to info.
func ParseLevel(v string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Nop is a logger for tests and tools that must stay quiet.
func Nop() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func Discard() *logrus.Entry { return logrus.NewEntry(Nop()) }
