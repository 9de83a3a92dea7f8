package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New creates the engine's configured logger. Production-like
// environments log JSON, everything else keeps the default text
// formatter for readability.
func New(logLevel string, environment string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(ParseLevel(logLevel))

	if environment == "production" || environment == "staging" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return logger
}

// ParseLevel converts a string level to a logrus.Level, defaulting to info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
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

// WithContest returns an entry tagged with a contest id.
func WithContest(logger *logrus.Logger, contestID string) *logrus.Entry {
	return logger.WithField("contest_id", contestID)
}

// WithTrigger returns an entry tagged with a scheduler trigger name.
func WithTrigger(logger *logrus.Logger, trigger string) *logrus.Entry {
	return logger.WithField("trigger", trigger)
}
