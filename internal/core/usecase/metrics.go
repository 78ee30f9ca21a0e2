package usecase

import (
	"errors"

	"github.com/Nzyazin/walletledger/internal/core/idempotency"
	"github.com/Nzyazin/walletledger/internal/core/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	operations *prometheus.CounterVec
	retries    *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallet",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by outcome.",
		}, []string{"operation", "result"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallet",
			Subsystem: "ledger",
			Name:      "conflict_retries_total",
			Help:      "Operations retried after a concurrency conflict.",
		}, []string{"operation"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wallet",
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Ledger operation latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (m *Metrics) observe(operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, resultLabel(err)).Inc()
	m.duration.WithLabelValues(operation).Observe(seconds)
}

func (m *Metrics) retried(operation string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(operation).Inc()
}

func resultLabel(err error) string {
	kinds := []struct {
		err   error
		label string
	}{
		{models.ErrWalletNotFound, "wallet_not_found"},
		{models.ErrTransactionNotFound, "transaction_not_found"},
		{models.ErrWalletNotActive, "wallet_not_active"},
		{models.ErrInvalidStatusTransition, "invalid_status_transition"},
		{models.ErrInvalidAmount, "invalid_amount"},
		{models.ErrCurrencyMismatch, "currency_mismatch"},
		{models.ErrInvalidCurrency, "invalid_currency"},
		{models.ErrInsufficientFunds, "insufficient_funds"},
		{models.ErrInvalidRefundTarget, "invalid_refund_target"},
		{models.ErrConcurrencyConflict, "concurrency_conflict"},
		{idempotency.ErrKeyConflict, "idempotency_conflict"},
	}

	if err == nil {
		return "success"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.label
		}
	}
	return "error"
}
