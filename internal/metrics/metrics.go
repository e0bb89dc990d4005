// Package metrics exposes billing counters on a private Prometheus registry.
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Collector records ledger and checkout activity. A nil *Collector is valid
// and records nothing.
type Collector struct {
	registry       *prometheus.Registry
	postings       *prometheus.CounterVec
	postingsFailed *prometheus.CounterVec
	payments       *prometheus.CounterVec
	paidAmount     *prometheus.CounterVec
	batchAccounts  *prometheus.CounterVec
	accountBalance *prometheus.GaugeVec
	logger         *slog.Logger
}

// NewCollector creates a Collector with its own registry.
func NewCollector(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		postings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "edubill_ledger_postings_total",
			Help: "Ledger entries posted, by type",
		}, []string{"type"}),
		postingsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "edubill_ledger_postings_failed_total",
			Help: "Ledger postings rejected, by type",
		}, []string{"type"}),
		payments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "edubill_checkout_payments_total",
			Help: "Checkout payments, by method and outcome",
		}, []string{"method", "outcome"}),
		paidAmount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "edubill_checkout_paid_amount_total",
			Help: "Amount settled at checkout, by funding source",
		}, []string{"source"}),
		batchAccounts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "edubill_batch_topup_accounts_total",
			Help: "Accounts processed by batch top-ups, by outcome",
		}, []string{"outcome"}),
		accountBalance: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "edubill_account_balance",
			Help: "Stored account balance after the last posting",
		}, []string{"account_id"}),
		logger: logger,
	}
}

// Registry returns the collector's registry.
func (m *Collector) Registry() *prometheus.Registry {
	return m.registry
}

// RecordPosting counts one ledger posting attempt.
func (m *Collector) RecordPosting(txType string, success bool) {
	if m == nil {
		return
	}
	if success {
		m.postings.WithLabelValues(txType).Inc()
	} else {
		m.postingsFailed.WithLabelValues(txType).Inc()
	}
}

// RecordPayment counts one checkout and the amounts drawn from each source.
func (m *Collector) RecordPayment(method string, success bool, balanceUsed, external decimal.Decimal) {
	if m == nil {
		return
	}
	outcome := "failed"
	if success {
		outcome = "succeeded"
		m.paidAmount.WithLabelValues("balance").Add(balanceUsed.InexactFloat64())
		m.paidAmount.WithLabelValues("external").Add(external.InexactFloat64())
	}
	m.payments.WithLabelValues(method, outcome).Inc()
}

// RecordBatch counts the accounts a batch top-up credited and skipped.
func (m *Collector) RecordBatch(succeeded, failed int) {
	if m == nil {
		return
	}
	m.batchAccounts.WithLabelValues("succeeded").Add(float64(succeeded))
	m.batchAccounts.WithLabelValues("failed").Add(float64(failed))
}

// SetBalance publishes an account's stored balance.
func (m *Collector) SetBalance(accountID string, balance decimal.Decimal) {
	if m == nil {
		return
	}
	m.accountBalance.WithLabelValues(accountID).Set(balance.InexactFloat64())
}

// Handler serves the registry in the Prometheus text format.
func (m *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
