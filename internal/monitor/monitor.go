package monitor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

// Stats is a snapshot of process and host resource usage.
type Stats struct {
	Timestamp   time.Time `json:"timestamp"`
	CPUUsage    float64   `json:"cpu_usage"`
	MemoryUsage float64   `json:"memory_usage"`
	MemoryGB    float64   `json:"memory_gb"`
	Goroutines  int       `json:"goroutines"`
}

// Monitor periodically samples CPU, memory and goroutine counts and
// logs them. High usage is logged at warn level so operators notice a
// scheduler host running hot before the timers start slipping.
type Monitor struct {
	mu       sync.RWMutex
	latest   Stats
	interval time.Duration
	logger   *logrus.Logger

	cpuThreshold float64
	memThreshold float64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a resource monitor sampling at the given interval.
func New(interval time.Duration, logger *logrus.Logger) *Monitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Monitor{
		interval:     interval,
		logger:       logger,
		cpuThreshold: 80.0,
		memThreshold: 85.0,
	}
}

// Start begins sampling in the background.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	m.sample(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sample(ctx)
			}
		}
	}()
}

// Stop halts sampling.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Stats returns the most recent sample.
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

func (m *Monitor) sample(ctx context.Context) {
	stats := Stats{
		Timestamp:  time.Now(),
		Goroutines: runtime.NumGoroutine(),
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		stats.CPUUsage = percents[0]
	} else if err != nil {
		m.logger.WithError(err).Debug("Could not sample CPU usage")
	}

	if memInfo, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemoryUsage = memInfo.UsedPercent
		stats.MemoryGB = float64(memInfo.Total) / (1024 * 1024 * 1024)
	} else {
		m.logger.WithError(err).Debug("Could not sample memory usage")
	}

	m.mu.Lock()
	m.latest = stats
	m.mu.Unlock()

	fields := logrus.Fields{
		"cpu_usage":    stats.CPUUsage,
		"memory_usage": stats.MemoryUsage,
		"goroutines":   stats.Goroutines,
	}
	if stats.CPUUsage > m.cpuThreshold || stats.MemoryUsage > m.memThreshold {
		m.logger.WithFields(fields).Warn("Resource usage high")
		return
	}
	m.logger.WithFields(fields).Debug("Resource usage sampled")
}
