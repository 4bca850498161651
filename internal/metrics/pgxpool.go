package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// RegisterPgxPoolMetrics exposes pool gauges under the pagebell_db_
// prefix. Acquire pressure (empty acquires climbing against acquires)
// is the early signal that the pool is undersized.
func RegisterPgxPoolMetrics(pool *pgxpool.Pool) {
	gauge := func(name, help string, value func(*pgxpool.Stat) int32) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "pagebell_db_" + name,
			Help: help,
		}, func() float64 {
			return float64(value(pool.Stat()))
		})
	}

	prometheus.MustRegister(
		gauge("pool_acquired_conns", "Connections currently checked out of the pool",
			func(s *pgxpool.Stat) int32 { return s.AcquiredConns() }),
		gauge("pool_idle_conns", "Connections sitting idle in the pool",
			func(s *pgxpool.Stat) int32 { return s.IdleConns() }),
		gauge("pool_total_conns", "Connections the pool currently holds, idle or acquired",
			func(s *pgxpool.Stat) int32 { return s.TotalConns() }),
		gauge("pool_max_conns", "Configured pool ceiling",
			func(s *pgxpool.Stat) int32 { return s.MaxConns() }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "pagebell_db_pool_acquires_total",
			Help: "Successful connection acquires since start",
		}, func() float64 {
			return float64(pool.Stat().AcquireCount())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "pagebell_db_pool_empty_acquires_total",
			Help: "Acquires that had to wait for a free connection",
		}, func() float64 {
			return float64(pool.Stat().EmptyAcquireCount())
		}),
	)
}
