package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := RelayTurns
	Init()
	if RelayTurns != first {
		t.Fatalf("Init re-registered metrics")
	}
	if UnitsRunning == nil || RelayEdits == nil || AuthChecks == nil || UpstreamLatency == nil {
		t.Fatalf("metrics not initialized")
	}
}

func TestRecordHelpersIncrement(t *testing.T) {
	Init()

	before := testutil.ToFloat64(RelayEdits.WithLabelValues("not_modified"))
	RecordEdit("not_modified")
	if got := testutil.ToFloat64(RelayEdits.WithLabelValues("not_modified")); got != before+1 {
		t.Fatalf("expected %v, got %v", before+1, got)
	}

	UnitStarted("telegram")
	UnitStarted("telegram")
	UnitStopped("telegram")
	if got := testutil.ToFloat64(UnitsRunning.WithLabelValues("telegram")); got < 1 {
		t.Fatalf("expected running gauge >= 1, got %v", got)
	}
}
