package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewLicensingMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLicensingMetrics(reg)

	m.IncAuthorization("license_consumed")
	m.IncLedgerWrite("usage")
	m.ObserveAuthorizeDuration("prepaid", 25*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 3 {
		t.Fatalf("expected 3 metric families, got %d", len(families))
	}
}

func TestLicensingMetricsNilSafe(t *testing.T) {
	var m *LicensingMetrics
	m.IncAuthorization("free_retest")
	m.IncLedgerWrite("purchase")
	m.ObserveAuthorizeDuration("credit", time.Second)

	empty := NewLicensingMetrics(nil)
	empty.IncAuthorization("")
	empty.IncLedgerWrite("")
}
