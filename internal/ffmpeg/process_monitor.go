package ffmpeg

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats is a snapshot of an FFmpeg process's resource usage.
type ProcessStats struct {
	PID int32 `json:"pid"`

	CPUPercent     float64 `json:"cpu_percent"`
	MemoryRSSBytes uint64  `json:"memory_rss_bytes"`
	MemoryPercent  float32 `json:"memory_percent"`

	// BytesWritten counts output bytes delivered to the client, tracked by
	// the CountingWriter wrapping the response.
	BytesWritten  uint64  `json:"bytes_written"`
	WriteRateKbps float64 `json:"write_rate_kbps"`

	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	LastUpdated time.Time     `json:"last_updated"`
}

// ProcessMonitor samples resource usage of a running FFmpeg process once a
// second via gopsutil.
type ProcessMonitor struct {
	pid       int32
	startedAt time.Time
	interval  time.Duration

	mu    sync.RWMutex
	stats ProcessStats

	bytesWritten atomic.Uint64

	lastBytesWritten uint64
	lastBytesCheck   time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessMonitor creates a monitor for the given PID.
func NewProcessMonitor(pid int) *ProcessMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessMonitor{
		pid:       int32(pid),
		startedAt: time.Now(),
		interval:  time.Second,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins the sampling loop.
func (pm *ProcessMonitor) Start() {
	pm.mu.Lock()
	pm.lastBytesCheck = time.Now()
	pm.mu.Unlock()

	pm.wg.Add(1)
	go pm.loop()
}

// Stop ends sampling and waits for the loop to exit.
func (pm *ProcessMonitor) Stop() {
	pm.cancel()
	pm.wg.Wait()
}

// AddBytesWritten records output bytes. Called from the copy path.
func (pm *ProcessMonitor) AddBytesWritten(n uint64) {
	pm.bytesWritten.Add(n)
}

// Stats returns the latest sampled snapshot.
func (pm *ProcessMonitor) Stats() ProcessStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	s := pm.stats
	s.BytesWritten = pm.bytesWritten.Load()
	s.Duration = time.Since(pm.startedAt)
	return s
}

func (pm *ProcessMonitor) loop() {
	defer pm.wg.Done()

	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	proc, err := process.NewProcessWithContext(pm.ctx, pm.pid)
	if err != nil {
		return
	}

	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.sample(proc)
		}
	}
}

func (pm *ProcessMonitor) sample(proc *process.Process) {
	now := time.Now()

	stats := ProcessStats{
		PID:         pm.pid,
		StartedAt:   pm.startedAt,
		Duration:    now.Sub(pm.startedAt),
		LastUpdated: now,
	}

	if pct, err := proc.CPUPercentWithContext(pm.ctx); err == nil {
		stats.CPUPercent = pct
	}
	if mi, err := proc.MemoryInfoWithContext(pm.ctx); err == nil && mi != nil {
		stats.MemoryRSSBytes = mi.RSS
	}
	if mp, err := proc.MemoryPercentWithContext(pm.ctx); err == nil {
		stats.MemoryPercent = mp
	}

	written := pm.bytesWritten.Load()
	pm.mu.Lock()
	elapsed := now.Sub(pm.lastBytesCheck).Seconds()
	if elapsed > 0 {
		stats.WriteRateKbps = float64(written-pm.lastBytesWritten) * 8 / 1000 / elapsed
	}
	pm.lastBytesWritten = written
	pm.lastBytesCheck = now
	stats.BytesWritten = written
	pm.stats = stats
	pm.mu.Unlock()
}

// CountingWriter wraps a writer and reports written bytes to a monitor.
type CountingWriter struct {
	w       io.Writer
	monitor *ProcessMonitor
}

// NewCountingWriter creates a counting writer. monitor may be nil.
func NewCountingWriter(w io.Writer, monitor *ProcessMonitor) *CountingWriter {
	return &CountingWriter{w: w, monitor: monitor}
}

func (cw *CountingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	if n > 0 && cw.monitor != nil {
		cw.monitor.AddBytesWritten(uint64(n))
	}
	return n, err
}
