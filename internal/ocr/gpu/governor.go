package gpu

import (
	"sync"
	"time"

	"github.com/ocrflow/ocrflow-backend/pkg/logger"
)

// DeviceProbe reports the GPU devices visible to the process. Probing errors
// are treated as "no GPU available"; acceleration is always optional.
type DeviceProbe interface {
	// Devices returns per-device total and allocated memory in bytes.
	// An empty slice means no GPU capability.
	Devices() ([]DeviceInfo, error)
}

// DeviceInfo describes one GPU device at probe time
type DeviceInfo struct {
	ID          int
	MemoryTotal uint64
	MemoryUsed  uint64
}

// deviceState is the volatile per-device bookkeeping. Reset only at process
// start; never persisted.
type deviceState struct {
	lock           sync.Mutex
	inUse          bool
	lastUsed       time.Time
	acquiredAt     time.Time
	usageCount     int64
	totalUsageTime time.Duration
	memoryTotal    uint64
	memoryUsed     uint64
}

// DeviceStats is the observability view of one device
type DeviceStats struct {
	ID          int     `json:"id"`
	InUse       bool    `json:"in_use"`
	UsageCount  int64   `json:"usage_count"`
	Utilization float64 `json:"utilization"`
}

// Governor arbitrates exclusive, non-blocking access to GPU devices.
// Callers that are not granted a device fall back to the CPU path; OCR work
// never queues behind a busy device.
type Governor struct {
	mu      sync.Mutex
	devices []*deviceState
	lastIdx int
	log     *logger.Logger
}

// New creates a Governor for the devices reported by the probe. Probe
// failures are swallowed: the resulting Governor simply never grants a device.
func New(probe DeviceProbe, log *logger.Logger) *Governor {
	g := &Governor{lastIdx: -1, log: log.WithComponent("gpu")}

	if probe == nil {
		return g
	}

	infos, err := probe.Devices()
	if err != nil {
		g.log.Warn().Err(err).Msg("GPU probe failed, continuing without GPU")
		return g
	}

	for _, info := range infos {
		g.devices = append(g.devices, &deviceState{
			memoryTotal: info.MemoryTotal,
			memoryUsed:  info.MemoryUsed,
		})
	}
	if len(g.devices) > 0 {
		g.log.Info().Int("devices", len(g.devices)).Msg("GPU devices available")
	}
	return g
}

// Select picks a free GPU device, preferring preferredID when it is free.
// Returns (false, -1) when no GPU capability exists or every device is busy;
// the caller must proceed on CPU rather than wait.
func (g *Governor) Select(preferredID int) (bool, int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.devices)
	if n == 0 {
		return false, -1
	}

	if preferredID >= 0 && preferredID < n {
		if g.tryAcquire(preferredID) {
			return true, preferredID
		}
	}

	// Round-robin scan starting just after the last granted device
	start := (g.lastIdx + 1) % n
	for i := 0; i < n; i++ {
		id := (start + i) % n
		if g.tryAcquire(id) {
			return true, id
		}
	}

	return false, -1
}

// tryAcquire must be called with g.mu held
func (g *Governor) tryAcquire(id int) bool {
	d := g.devices[id]
	if !d.lock.TryLock() {
		return false
	}
	now := time.Now()
	d.inUse = true
	d.acquiredAt = now
	d.lastUsed = now
	d.usageCount++
	g.lastIdx = id
	return true
}

// Release marks the device free and accumulates usage statistics. It must be
// called exactly once per granted Select, including on error paths.
func (g *Governor) Release(id int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id < 0 || id >= len(g.devices) {
		return
	}
	d := g.devices[id]
	if !d.inUse {
		return
	}
	d.totalUsageTime += time.Since(d.acquiredAt)
	d.lastUsed = time.Now()
	d.inUse = false
	d.lock.Unlock()
}

// Stats returns a best-effort utilization view of every device. A device in
// use reports at least 50% utilization; idle devices report the
// allocated/total memory ratio.
func (g *Governor) Stats() []DeviceStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	stats := make([]DeviceStats, len(g.devices))
	for i, d := range g.devices {
		util := 0.0
		if d.memoryTotal > 0 {
			util = float64(d.memoryUsed) / float64(d.memoryTotal)
		}
		if d.inUse && util < 0.5 {
			util = 0.5
		}
		stats[i] = DeviceStats{
			ID:          i,
			InUse:       d.inUse,
			UsageCount:  d.usageCount,
			Utilization: util,
		}
	}
	return stats
}

// Available reports whether any device exists at all
func (g *Governor) Available() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.devices) > 0
}

// StaticProbe reports a fixed number of identical devices. Used when device
// discovery is configured rather than probed, and in tests.
type StaticProbe struct {
	Count       int
	MemoryTotal uint64
}

// Devices implements DeviceProbe
func (p StaticProbe) Devices() ([]DeviceInfo, error) {
	infos := make([]DeviceInfo, p.Count)
	for i := range infos {
		infos[i] = DeviceInfo{ID: i, MemoryTotal: p.MemoryTotal}
	}
	return infos, nil
}
