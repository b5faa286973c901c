package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}
}

func TestObserveEventCounts(t *testing.T) {
	before := testutil.ToFloat64(eventsTotal.WithLabelValues("RAN", OutcomeInvalid))
	ObserveEvent("RAN", OutcomeInvalid)
	ObserveEvent("RAN", OutcomeInvalid)
	after := testutil.ToFloat64(eventsTotal.WithLabelValues("RAN", OutcomeInvalid))
	if after-before != 2 {
		t.Fatalf("expected two invalid events counted, got %v", after-before)
	}

	ObserveEvent("", OutcomeRejected)
	if got := testutil.ToFloat64(eventsTotal.WithLabelValues("unknown", OutcomeRejected)); got < 1 {
		t.Fatalf("expected empty domain to be labelled unknown")
	}
}

func TestGaugesAndCounters(t *testing.T) {
	SetOpenIncidents(4)
	if got := testutil.ToFloat64(openIncidents); got != 4 {
		t.Fatalf("expected 4 open incidents, got %v", got)
	}
	before := testutil.ToFloat64(incidentsClosedTotal)
	IncidentsClosed(0)
	IncidentsClosed(3)
	if got := testutil.ToFloat64(incidentsClosedTotal) - before; got != 3 {
		t.Fatalf("expected 3 closed, got %v", got)
	}
	ObserveDecision(-time.Second)
}
