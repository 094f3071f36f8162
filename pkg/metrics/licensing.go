package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LicensingMetrics records authorization decisions and ledger writes.
type LicensingMetrics struct {
	authorizations *prometheus.CounterVec
	ledgerWrites   *prometheus.CounterVec
	authorizeTime  *prometheus.HistogramVec
}

// NewLicensingMetrics registers the licensing metrics on the provided registerer.
func NewLicensingMetrics(reg prometheus.Registerer) *LicensingMetrics {
	if reg == nil {
		return &LicensingMetrics{}
	}
	authorizations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_authorizations_total",
		Help: "Test authorization decisions by outcome reason.",
	}, []string{"reason"})
	ledgerWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_entries_total",
		Help: "Ledger entries appended by transaction type.",
	}, []string{"transaction_type"})
	authorizeTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authorize_duration_seconds",
		Help:    "Duration of the authorization decision in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"account_type"})
	reg.MustRegister(authorizations, ledgerWrites, authorizeTime)
	return &LicensingMetrics{
		authorizations: authorizations,
		ledgerWrites:   ledgerWrites,
		authorizeTime:  authorizeTime,
	}
}

// IncAuthorization increments the decision counter for the given reason.
func (m *LicensingMetrics) IncAuthorization(reason string) {
	if m == nil || m.authorizations == nil {
		return
	}
	m.authorizations.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncLedgerWrite increments the ledger write counter for the transaction type.
func (m *LicensingMetrics) IncLedgerWrite(transactionType string) {
	if m == nil || m.ledgerWrites == nil {
		return
	}
	m.ledgerWrites.WithLabelValues(normalizeLabel(transactionType)).Inc()
}

// ObserveAuthorizeDuration records how long a decision took per account type.
func (m *LicensingMetrics) ObserveAuthorizeDuration(accountType string, duration time.Duration) {
	if m == nil || m.authorizeTime == nil {
		return
	}
	m.authorizeTime.WithLabelValues(normalizeLabel(accountType)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
