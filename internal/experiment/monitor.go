package experiment

import (
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/armtune/tuner-core/pkg/logger"
)

// ResourceMonitor samples the tuner's own CPU and memory use while a
// session runs and keeps the observed peaks for the session summary.
type ResourceMonitor struct {
	proc     *process.Process
	interval time.Duration

	mu         sync.Mutex
	peakCPU    float64
	peakRSS    uint64
	sampleDone chan struct{}
	stopped    chan struct{}
}

// NewResourceMonitor creates a monitor for the current process.
func NewResourceMonitor(interval time.Duration) (*ResourceMonitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &ResourceMonitor{
		proc:     proc,
		interval: interval,
	}, nil
}

// Start launches the sampling goroutine. Calling Start on a running
// monitor is a no-op.
func (m *ResourceMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sampleDone != nil {
		return
	}
	m.sampleDone = make(chan struct{})
	m.stopped = make(chan struct{})
	go m.loop(m.sampleDone, m.stopped)
}

// Stop halts sampling and waits for the goroutine to exit.
func (m *ResourceMonitor) Stop() {
	m.mu.Lock()
	done := m.sampleDone
	stopped := m.stopped
	m.sampleDone = nil
	m.mu.Unlock()

	if done == nil {
		return
	}
	close(done)
	<-stopped
}

// Peaks returns the highest CPU percentage and resident set size seen.
func (m *ResourceMonitor) Peaks() (cpuPercent float64, rssBytes uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakCPU, m.peakRSS
}

func (m *ResourceMonitor) loop(done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *ResourceMonitor) sample() {
	cpu, err := m.proc.CPUPercent()
	if err != nil {
		logger.Debug("cpu sample failed", "error", err)
		cpu = 0
	}

	var rss uint64
	if mem, err := m.proc.MemoryInfo(); err == nil && mem != nil {
		rss = mem.RSS
	}

	m.mu.Lock()
	if cpu > m.peakCPU {
		m.peakCPU = cpu
	}
	if rss > m.peakRSS {
		m.peakRSS = rss
	}
	m.mu.Unlock()
}
