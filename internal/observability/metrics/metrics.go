// Package metrics exposes prometheus collectors for the settlement engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "payments_"

// Outcome labels shared across collectors.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

var (
	settlementsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "settlements_created_total",
		Help: "Settlement records created",
	})

	notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricPrefix + "notifications_total",
		Help: "Processor notifications handled, by kind and outcome",
	}, []string{"kind", "outcome"})

	transfers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricPrefix + "transfers_total",
		Help: "Payout transfer attempts, by outcome",
	}, []string{"outcome"})

	transferredAmount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "transferred_minor_units_total",
		Help: "Total minor units moved by successful payout transfers",
	})

	duplicateTransfers = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "duplicate_transfer_suspected_total",
		Help: "Transfers whose local record turned out to already carry a transfer ref",
	})

	orphanedAuthorizations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "orphaned_authorizations_total",
		Help: "Charge authorizations created externally with no local record",
	})
)

func init() {
	prometheus.MustRegister(
		settlementsCreated,
		notifications,
		transfers,
		transferredAmount,
		duplicateTransfers,
		orphanedAuthorizations,
	)
}

// ObserveSettlementCreated counts one created settlement record.
func ObserveSettlementCreated() {
	settlementsCreated.Inc()
}

// ObserveNotification counts one handled processor notification.
func ObserveNotification(kind, outcome string) {
	notifications.WithLabelValues(kind, outcome).Inc()
}

// ObserveTransfer counts one payout transfer attempt; amount is added to
// the moved total only on success.
func ObserveTransfer(outcome string, amount int64) {
	transfers.WithLabelValues(outcome).Inc()
	if outcome == ResultSuccess && amount > 0 {
		transferredAmount.Add(float64(amount))
	}
}

// ObserveDuplicateTransferSuspected counts a reconciliation-worthy anomaly:
// a transfer was executed for a record that already had one recorded.
func ObserveDuplicateTransferSuspected() {
	duplicateTransfers.Inc()
}

// ObserveOrphanedAuthorization counts a charge authorization left without a
// local record (partial failure during settlement creation).
func ObserveOrphanedAuthorization() {
	orphanedAuthorizations.Inc()
}
