package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordTransitionUpdatesGaugesAndCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// Second call is a no-op.
	if err := Register(reg); err != nil {
		t.Fatalf("Register again: %v", err)
	}

	RecordTransition("milk", "running", "sleeping")
	RecordTransition("milk", "sleeping", "sleeping")

	if got := testutil.ToFloat64(stateTransitions.WithLabelValues("milk", "running", "sleeping")); got != 1 {
		t.Fatalf("transitions running->sleeping = %v, want 1", got)
	}
	if got := testutil.ToFloat64(currentState.WithLabelValues("milk", "sleeping")); got != 1 {
		t.Fatalf("current_state sleeping = %v, want 1", got)
	}
	if got := testutil.ToFloat64(currentState.WithLabelValues("milk", "running")); got != 0 {
		t.Fatalf("current_state running = %v, want 0", got)
	}

	IncToggle("milk", false)
	IncToggle("milk", false)
	if got := testutil.ToFloat64(toggles.WithLabelValues("milk", "false")); got != 2 {
		t.Fatalf("toggles = %v, want 2", got)
	}
}

func TestIncStartFailure(t *testing.T) {
	if err := Register(prometheus.NewRegistry()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	before := testutil.ToFloat64(startFailures.WithLabelValues("cheese"))
	IncStartFailure("cheese")
	if got := testutil.ToFloat64(startFailures.WithLabelValues("cheese")); got != before+1 {
		t.Fatalf("start failures = %v, want %v", got, before+1)
	}
}
