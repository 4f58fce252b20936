package metrics

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"
)

// Metrics keeps in-process counters, gauges and histograms
type Metrics struct {
	mu         sync.RWMutex
	startTime  time.Time
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string][]float64
	enabled    bool
}

// HistogramStats summarises the values recorded under one histogram name
type HistogramStats struct {
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Summary is the JSON shape served by the health endpoint
type Summary struct {
	Timestamp  time.Time                 `json:"timestamp"`
	Uptime     string                    `json:"uptime"`
	Counters   map[string]int64          `json:"counters"`
	Gauges     map[string]float64        `json:"gauges"`
	Histograms map[string]HistogramStats `json:"histograms"`
	Goroutines int                       `json:"goroutines"`
	HeapMB     float64                   `json:"heap_mb"`
}

// maxSamples bounds each histogram; older samples are dropped first.
const maxSamples = 1024

// NewMetrics creates an enabled metrics registry
func NewMetrics() *Metrics {
	return &Metrics{
		startTime:  time.Now(),
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
		enabled:    true,
	}
}

func (m *Metrics) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

func (m *Metrics) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

func (m *Metrics) IncCounter(name string) {
	m.AddCounter(name, 1)
}

func (m *Metrics) AddCounter(name string, value int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return
	}
	m.counters[name] += value
}

func (m *Metrics) SetGauge(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return
	}
	m.gauges[name] = value
}

// Observe records one histogram sample
func (m *Metrics) Observe(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return
	}
	values := append(m.histograms[name], value)
	if len(values) > maxSamples {
		values = values[len(values)-maxSamples:]
	}
	m.histograms[name] = values
}

func (m *Metrics) GetCounter(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[name]
}

func (m *Metrics) GetGauge(name string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gauges[name]
}

// GetHistogramStats returns nil when nothing was recorded under name
func (m *Metrics) GetHistogramStats(name string) *HistogramStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	values, ok := m.histograms[name]
	if !ok {
		return nil
	}
	stats := computeStats(values)
	return &stats
}

func computeStats(values []float64) HistogramStats {
	if len(values) == 0 {
		return HistogramStats{}
	}
	stats := HistogramStats{Count: len(values), Min: values[0], Max: values[0]}
	for _, v := range values {
		stats.Sum += v
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
	}
	stats.Mean = stats.Sum / float64(len(values))
	return stats
}

// RecordCommandExecution records one slash command or button press
func (m *Metrics) RecordCommandExecution(command string, success bool, duration time.Duration) {
	m.IncCounter("command_total_" + command)
	if success {
		m.IncCounter("command_success_" + command)
	} else {
		m.IncCounter("command_error_" + command)
	}
	m.Observe("command_duration_ms_"+command, float64(duration.Milliseconds()))
}

// RecordTrackEvent counts track lifecycle events such as started, finished or failed
func (m *Metrics) RecordTrackEvent(event string) {
	m.IncCounter("track_" + event)
}

// RecordQueueEvent counts queue mutations and tracks the latest queue length
func (m *Metrics) RecordQueueEvent(event string, queueSize int) {
	m.IncCounter("queue_" + event)
	m.SetGauge("queue_size_last", float64(queueSize))
}

// RecordSessionEvent counts session lifecycle events and keeps the active gauge current
func (m *Metrics) RecordSessionEvent(event string, active int) {
	m.IncCounter("session_" + event)
	m.SetGauge("sessions_active", float64(active))
}

// RecordResolve records one stream resolution attempt for a backend
func (m *Metrics) RecordResolve(backend string, success bool, duration time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.IncCounter(fmt.Sprintf("resolve_%s_%s", backend, outcome))
	m.Observe("resolve_duration_ms_"+backend, float64(duration.Milliseconds()))
}

func (m *Metrics) RecordError(kind string) {
	m.IncCounter("error_" + kind)
}

// Snapshot returns a point-in-time copy of every metric
func (m *Metrics) Snapshot() Summary {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Summary{
		Timestamp:  time.Now(),
		Uptime:     time.Since(m.startTime).Round(time.Second).String(),
		Counters:   make(map[string]int64, len(m.counters)),
		Gauges:     make(map[string]float64, len(m.gauges)),
		Histograms: make(map[string]HistogramStats, len(m.histograms)),
		Goroutines: runtime.NumGoroutine(),
		HeapMB:     float64(mem.HeapAlloc) / 1024 / 1024,
	}
	for k, v := range m.counters {
		s.Counters[k] = v
	}
	for k, v := range m.gauges {
		s.Gauges[k] = v
	}
	for k, v := range m.histograms {
		s.Histograms[k] = computeStats(v)
	}
	return s
}

// CounterNames returns the registered counter names in sorted order
func (m *Metrics) CounterNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.counters))
	for k := range m.counters {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Collector samples runtime gauges on an interval until ctx is cancelled
type Collector struct {
	metrics  *Metrics
	interval time.Duration
}

func NewCollector(metrics *Metrics, interval time.Duration) *Collector {
	return &Collector{metrics: metrics, interval: interval}
}

func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			c.metrics.SetGauge("system_memory_alloc_mb", float64(mem.Alloc)/1024/1024)
			c.metrics.SetGauge("system_goroutines", float64(runtime.NumGoroutine()))
			c.metrics.SetGauge("system_gc_count", float64(mem.NumGC))
		}
	}
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Global returns the process-wide metrics registry
func Global() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = NewMetrics()
	})
	return globalMetrics
}
