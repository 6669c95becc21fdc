package database

import (
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStats is a point-in-time view of a store's connection pool, whichever
// driver backs it.
type PoolStats struct {
	InUse       int64
	Idle        int64
	Open        int64
	Max         int64
	Waits       int64
	WaitElapsed time.Duration
}

// StatsFunc samples a pool at scrape time.
type StatsFunc func() PoolStats

// PgxPoolStats samples a pgx pool. Every acquire counts as a wait.
func PgxPoolStats(pool *pgxpool.Pool) StatsFunc {
	return func() PoolStats {
		s := pool.Stat()
		return PoolStats{
			InUse:       int64(s.AcquiredConns()),
			Idle:        int64(s.IdleConns()),
			Open:        int64(s.TotalConns()),
			Max:         int64(s.MaxConns()),
			Waits:       s.AcquireCount(),
			WaitElapsed: s.AcquireDuration(),
		}
	}
}

// SQLDBStats samples a database/sql handle.
func SQLDBStats(db *sql.DB) StatsFunc {
	return func() PoolStats {
		s := db.Stats()
		return PoolStats{
			InUse:       int64(s.InUse),
			Idle:        int64(s.Idle),
			Open:        int64(s.OpenConnections),
			Max:         int64(s.MaxOpenConnections),
			Waits:       s.WaitCount,
			WaitElapsed: s.WaitDuration,
		}
	}
}

// PoolCollector exports PoolStats as sync_store_pool_* metrics labelled by
// db.system.
type PoolCollector struct {
	stats  StatsFunc
	system string

	inUse       *prometheus.Desc
	idle        *prometheus.Desc
	open        *prometheus.Desc
	max         *prometheus.Desc
	waits       *prometheus.Desc
	waitSeconds *prometheus.Desc
}

// NewPoolCollector builds a collector for one store.
func NewPoolCollector(system string, stats StatsFunc) *PoolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("sync_store_pool_"+name, help, []string{"system"}, nil)
	}
	return &PoolCollector{
		stats:       stats,
		system:      system,
		inUse:       desc("in_use_connections", "Connections currently handed out to sync store calls."),
		idle:        desc("idle_connections", "Open connections not in use."),
		open:        desc("open_connections", "Open connections, in use or idle."),
		max:         desc("max_connections", "Configured connection limit. Zero means unlimited."),
		waits:       desc("waits_total", "Times a caller waited for a connection."),
		waitSeconds: desc("wait_seconds_total", "Time spent waiting for connections."),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.inUse, c.idle, c.open, c.max, c.waits, c.waitSeconds} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	gauge := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v), c.system)
	}
	gauge(c.inUse, s.InUse)
	gauge(c.idle, s.Idle)
	gauge(c.open, s.Open)
	gauge(c.max, s.Max)
	ch <- prometheus.MustNewConstMetric(c.waits, prometheus.CounterValue, float64(s.Waits), c.system)
	ch <- prometheus.MustNewConstMetric(c.waitSeconds, prometheus.CounterValue, s.WaitElapsed.Seconds(), c.system)
}

// RegisterPoolMetrics registers a PoolCollector with reg.
func RegisterPoolMetrics(reg prometheus.Registerer, system string, stats StatsFunc) error {
	return reg.Register(NewPoolCollector(system, stats))
}
