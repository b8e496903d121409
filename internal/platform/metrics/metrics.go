// Package metrics provides observability for the atmospherics server.
// Counters are exported through Prometheus; a JSON snapshot mirrors the
// headline numbers for /api/metrics and for config.Analyze.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "atmos"

// Collector gathers performance metrics.
type Collector struct {
	registry *prometheus.Registry

	ticks            prometheus.Counter
	tickLatency      prometheus.Histogram
	activeTiles      *prometheus.GaugeVec
	dormantTiles     prometheus.Counter
	molesMoved       prometheus.Counter
	alarmTransitions *prometheus.CounterVec
	deviceErrors     prometheus.Counter
	repartitions     prometheus.Counter
	hazards          *prometheus.CounterVec
	wsConnections    prometheus.Gauge
	wsMessages       *prometheus.CounterVec
	wsErrors         prometheus.Counter
	eventsWritten    prometheus.Counter
	eventWriteErrors prometheus.Counter
	eventWriteLat    prometheus.Histogram
	eventsDropped    prometheus.Counter

	// Mirrors for Snapshot.
	tickCount        int64
	tickLatencySum   int64 // nanoseconds
	tickLatencyMax   int64
	eventCount       int64
	eventLatSum      int64
	eventLatMax      int64
	eventErrors      int64
	eventDropped     int64
	wsActive         int64
	wsIn             int64
	wsOut            int64
	wsErrCount       int64
	activeTotal      int64
	alarmTransitionN int64

	mu           sync.RWMutex
	lastTickTime time.Time
	startTime    time.Time
}

var collector = NewCollector()

// Get returns the process-wide collector.
func Get() *Collector {
	return collector
}

// NewCollector builds a collector on its own registry. Tests create one
// each so counters never leak between cases.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry:  reg,
		startTime: time.Now(),

		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Simulation ticks completed.",
		}),
		tickLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tick_duration_seconds",
			Help:    "Wall time spent in one simulation tick.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		activeTiles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_tiles",
			Help: "Tiles queued for equalization after the last tick.",
		}, []string{"grid"}),
		dormantTiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "dormant_transitions_total",
			Help: "Tiles that went dormant after settling.",
		}),
		molesMoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "moles_moved_total",
			Help: "Moles moved by tile sharing and devices.",
		}),
		alarmTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alarm_transitions_total",
			Help: "Alarm level transitions by target level.",
		}, []string{"level"}),
		deviceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "device_config_errors_total",
			Help: "Devices disabled because of configuration errors.",
		}),
		repartitions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "pipe_repartitions_total",
			Help: "Pipe network topology rebuilds.",
		}),
		hazards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "hazards_total",
			Help: "Station incidents by kind.",
		}, []string{"kind"}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "ws_connections",
			Help: "Active overlay websocket connections.",
		}),
		wsMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ws_messages_total",
			Help: "Websocket messages by direction.",
		}, []string{"direction"}),
		wsErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ws_errors_total",
			Help: "Websocket read/write failures.",
		}),
		eventsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_written_total",
			Help: "Events persisted to storage.",
		}),
		eventWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "event_write_errors_total",
			Help: "Event persistence failures.",
		}),
		eventWriteLat: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "event_write_duration_seconds",
			Help:    "Latency of one event write.",
			Buckets: prometheus.DefBuckets,
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_dropped_total",
			Help: "Events kept in memory only because persistence fell behind or had stopped.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.ticks, c.tickLatency, c.activeTiles, c.dormantTiles, c.molesMoved,
		c.alarmTransitions, c.deviceErrors, c.repartitions, c.hazards,
		c.wsConnections, c.wsMessages, c.wsErrors,
		c.eventsWritten, c.eventWriteErrors, c.eventWriteLat, c.eventsDropped,
	)
	return c
}

// Registry exposes the underlying registry for scraping.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordTick records a tick cycle completion.
func (c *Collector) RecordTick(latency time.Duration) {
	c.ticks.Inc()
	c.tickLatency.Observe(latency.Seconds())
	atomic.AddInt64(&c.tickCount, 1)
	atomic.AddInt64(&c.tickLatencySum, int64(latency))
	storeMax(&c.tickLatencyMax, int64(latency))

	c.mu.Lock()
	c.lastTickTime = time.Now()
	c.mu.Unlock()
}

// SetActiveTiles publishes the active queue length of one grid.
func (c *Collector) SetActiveTiles(grid string, n int) {
	c.activeTiles.WithLabelValues(grid).Set(float64(n))
}

// SetActiveTotal publishes the active queue length summed over grids.
func (c *Collector) SetActiveTotal(n int) {
	atomic.StoreInt64(&c.activeTotal, int64(n))
}

// ForgetGrid drops the per-grid series of a removed grid.
func (c *Collector) ForgetGrid(grid string) {
	c.activeTiles.DeleteLabelValues(grid)
}

// RecordDormant counts tiles that settled this tick.
func (c *Collector) RecordDormant(n int) {
	if n > 0 {
		c.dormantTiles.Add(float64(n))
	}
}

// RecordMolesMoved adds to the moved-moles counter.
func (c *Collector) RecordMolesMoved(n float64) {
	if n > 0 {
		c.molesMoved.Add(n)
	}
}

// RecordAlarmTransition counts one alarm edge.
func (c *Collector) RecordAlarmTransition(level string) {
	c.alarmTransitions.WithLabelValues(level).Inc()
	atomic.AddInt64(&c.alarmTransitionN, 1)
}

// RecordDeviceConfigError counts a device disabled at registration.
func (c *Collector) RecordDeviceConfigError() {
	c.deviceErrors.Inc()
}

// RecordHazard counts one incident.
func (c *Collector) RecordHazard(kind string) {
	c.hazards.WithLabelValues(kind).Inc()
}

// RecordRepartition counts a pipe topology rebuild.
func (c *Collector) RecordRepartition() {
	c.repartitions.Inc()
}

// RecordEventDropped counts an event that never reached storage.
func (c *Collector) RecordEventDropped() {
	c.eventsDropped.Inc()
	atomic.AddInt64(&c.eventDropped, 1)
}

// RecordEventWrite records an event write to the database.
func (c *Collector) RecordEventWrite(latency time.Duration, err error) {
	c.eventsWritten.Inc()
	c.eventWriteLat.Observe(latency.Seconds())
	atomic.AddInt64(&c.eventCount, 1)
	atomic.AddInt64(&c.eventLatSum, int64(latency))
	storeMax(&c.eventLatMax, int64(latency))

	if err != nil {
		c.eventWriteErrors.Inc()
		atomic.AddInt64(&c.eventErrors, 1)
	}
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	c.wsConnections.Add(float64(delta))
	atomic.AddInt64(&c.wsActive, delta)
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if incoming {
		c.wsMessages.WithLabelValues("in").Inc()
		atomic.AddInt64(&c.wsIn, 1)
	} else {
		c.wsMessages.WithLabelValues("out").Inc()
		atomic.AddInt64(&c.wsOut, 1)
	}
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	c.wsErrors.Inc()
	atomic.AddInt64(&c.wsErrCount, 1)
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	lastTick := c.lastTickTime
	c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.tickCount)
	eventCount := atomic.LoadInt64(&c.eventCount)

	var tickAvg, eventAvg float64
	if tickCount > 0 {
		tickAvg = float64(atomic.LoadInt64(&c.tickLatencySum)) / float64(tickCount) / 1e6 // ms
	}
	if eventCount > 0 {
		eventAvg = float64(atomic.LoadInt64(&c.eventLatSum)) / float64(eventCount) / 1e6
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.startTime).Seconds(),

		"tick": map[string]interface{}{
			"count":          tickCount,
			"avg_latency_ms": tickAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.tickLatencyMax)) / 1e6,
			"last_tick":      lastTick.Format(time.RFC3339),
			"active_tiles":   atomic.LoadInt64(&c.activeTotal),
		},

		"alarms": map[string]interface{}{
			"transitions": atomic.LoadInt64(&c.alarmTransitionN),
		},

		"events": map[string]interface{}{
			"written":          eventCount,
			"avg_write_lat_ms": eventAvg,
			"max_write_lat_ms": float64(atomic.LoadInt64(&c.eventLatMax)) / 1e6,
			"errors":           atomic.LoadInt64(&c.eventErrors),
			"dropped":          atomic.LoadInt64(&c.eventDropped),
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.wsActive),
			"messages_in":        atomic.LoadInt64(&c.wsIn),
			"messages_out":       atomic.LoadInt64(&c.wsOut),
			"errors":             atomic.LoadInt64(&c.wsErrCount),
		},
	}
}

// Handler returns an HTTP handler for the JSON snapshot.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		json.NewEncoder(w).Encode(c.Snapshot())
	}
}

// PrometheusHandler serves the registry in the Prometheus text format.
func (c *Collector) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func storeMax(addr *int64, v int64) {
	for {
		cur := atomic.LoadInt64(addr)
		if v <= cur || atomic.CompareAndSwapInt64(addr, cur, v) {
			return
		}
	}
}
