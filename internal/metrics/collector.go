// Package metrics provides in-memory harvest statistics.
package metrics

import (
	"context"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/catalog-harvester/internal/models"
)

// OperationMetrics holds aggregated timings of one operation.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`
}

// BackendSnapshot aggregates the finished jobs of one backend.
type BackendSnapshot struct {
	Backend string                      `json:"backend"`
	Jobs    *OperationSnapshot          `json:"jobs"`
	ByJob   map[models.JobStatus]int64  `json:"by_job_status"`
	ByItem  map[models.ItemStatus]int64 `json:"by_item_status"`
}

// Snapshot represents the statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64           `json:"uptime_seconds"`
	Running       int               `json:"running"`
	Backends      []BackendSnapshot `json:"backends"`
}

type backendMetrics struct {
	jobs   *OperationMetrics
	byJob  map[models.JobStatus]int64
	byItem map[models.ItemStatus]int64
}

// Collector aggregates harvest statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	running   int
	backends  map[string]*backendMetrics
}

// NewCollector creates a new collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		backends:  make(map[string]*backendMetrics),
	}
}

// getOrCreate returns the metrics of a backend. Caller must hold write lock.
func (c *Collector) getOrCreate(name string) *backendMetrics {
	m, ok := c.backends[name]
	if !ok {
		m = &backendMetrics{
			jobs:   &OperationMetrics{MinTime: time.Duration(math.MaxInt64)},
			byJob:  make(map[models.JobStatus]int64),
			byItem: make(map[models.ItemStatus]int64),
		}
		c.backends[name] = m
	}
	return m
}

// JobStarted counts a run in progress. It is registered as a Before hook.
func (c *Collector) JobStarted(_ context.Context, _ *models.HarvestSource, _ *models.HarvestJob) {
	c.mu.Lock()
	c.running++
	c.mu.Unlock()
}

// JobFinished records the outcome of a finished job. It is registered as an
// After hook.
func (c *Collector) JobFinished(_ context.Context, src *models.HarvestSource, job *models.HarvestJob) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running > 0 {
		c.running--
	}

	m := c.getOrCreate(src.Backend)
	d := job.Duration()
	m.jobs.Count++
	m.jobs.TotalTime += d
	if d < m.jobs.MinTime {
		m.jobs.MinTime = d
	}
	if d > m.jobs.MaxTime {
		m.jobs.MaxTime = d
	}
	m.byJob[job.Status]++
	for _, item := range job.Items {
		m.byItem[item.Status]++
	}
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}
	return &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
}

// Snapshot returns a point-in-time snapshot, backends sorted by name.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Running:       c.running,
		Backends:      make([]BackendSnapshot, 0, len(c.backends)),
	}
	for name, m := range c.backends {
		b := BackendSnapshot{
			Backend: name,
			Jobs:    snapshotOp(m.jobs),
			ByJob:   make(map[models.JobStatus]int64, len(m.byJob)),
			ByItem:  make(map[models.ItemStatus]int64, len(m.byItem)),
		}
		for k, v := range m.byJob {
			b.ByJob[k] = v
		}
		for k, v := range m.byItem {
			b.ByItem[k] = v
		}
		snap.Backends = append(snap.Backends, b)
	}
	slices.SortFunc(snap.Backends, func(a, b BackendSnapshot) int {
		return strings.Compare(a.Backend, b.Backend)
	})
	return snap
}
