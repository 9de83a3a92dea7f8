package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, logrus.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, logrus.WarnLevel, ParseLevel("WARNING"))
	assert.Equal(t, logrus.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("info"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("unknown"))
}

func TestNew_ProductionUsesJSON(t *testing.T) {
	logger := New("debug", "production")
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	dev := New("info", "development")
	assert.IsType(t, &logrus.TextFormatter{}, dev.Formatter)
}

func TestWithHelpers(t *testing.T) {
	logger := New("info", "development")
	entry := WithContest(logger, "c-123")
	assert.Equal(t, "c-123", entry.Data["contest_id"])
	entry = WithTrigger(logger, "market-close")
	assert.Equal(t, "market-close", entry.Data["trigger"])
}
