package metrics

import (
	"database/sql"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// RegisterDBMetrics registers gauges computed from the settlement tables.
func RegisterDBMetrics(db *sql.DB, logger *slog.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "settlements_pending",
			Help: "Settlement records awaiting a charge outcome",
		},
		func() float64 {
			return queryCount(db, logger,
				"SELECT COUNT(*) FROM settlement_records WHERE status = 'pending'")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "payouts_unsettled",
			Help: "Completed settlement records with no payout transfer yet",
		},
		func() float64 {
			return queryCount(db, logger,
				"SELECT COUNT(*) FROM settlement_records WHERE status = 'completed' AND transfer_ref IS NULL")
		},
	))
}

func queryCount(db *sql.DB, logger *slog.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Warn("metrics query failed", "error", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
