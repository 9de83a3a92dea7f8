package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestMonitor_SamplesOnStart(t *testing.T) {
	m := New(time.Hour, testLogger())
	m.Start(context.Background())
	defer m.Stop()

	stats := m.Stats()
	assert.False(t, stats.Timestamp.IsZero())
	assert.Greater(t, stats.Goroutines, 0)
}

func TestMonitor_StopIsIdempotentAndClean(t *testing.T) {
	m := New(10*time.Millisecond, testLogger())
	m.Start(context.Background())

	time.Sleep(30 * time.Millisecond)
	m.Stop()
	m.Stop()

	// After Stop the latest sample stays readable.
	assert.False(t, m.Stats().Timestamp.IsZero())
}

func TestNew_DefaultInterval(t *testing.T) {
	m := New(0, testLogger())
	assert.Equal(t, time.Minute, m.interval)
}
