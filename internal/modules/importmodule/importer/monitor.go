package importer

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/ferrow/designvault/internal/logger"
)

// SystemLoad is a point-in-time snapshot of host resource usage,
// surfaced on the import status endpoint so operators can see what a
// bulk run is costing the machine.
type SystemLoad struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	MemoryUsedMB  uint64    `json:"memory_used_mb"`
	SampledAt     time.Time `json:"sampled_at"`
}

// SystemMonitor samples host load on a background ticker. Reads return
// the last sample, so status requests never block on the sampler.
type SystemMonitor struct {
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once

	mu   sync.RWMutex
	last SystemLoad
}

// NewSystemMonitor creates a monitor sampling at the given interval
func NewSystemMonitor(interval time.Duration) *SystemMonitor {
	return &SystemMonitor{
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start takes an initial sample and begins the background loop
func (m *SystemMonitor) Start() {
	m.sample()
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sample()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop halts the sampling loop
func (m *SystemMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Load returns the most recent sample
func (m *SystemMonitor) Load() SystemLoad {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

func (m *SystemMonitor) sample() {
	load := SystemLoad{SampledAt: time.Now()}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		load.CPUPercent = percents[0]
	} else if err != nil {
		logger.Debug("CPU sample failed: %v", err)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		load.MemoryPercent = vm.UsedPercent
		load.MemoryUsedMB = vm.Used / 1024 / 1024
	} else {
		logger.Debug("Memory sample failed: %v", err)
	}

	m.mu.Lock()
	m.last = load
	m.mu.Unlock()
}
