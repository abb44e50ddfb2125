package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(SessionsTotal)
	SessionsTotal.Inc()
	after := testutil.ToFloat64(SessionsTotal)
	if after != before+1 {
		t.Errorf("SessionsTotal after Inc = %v, want %v", after, before+1)
	}
}

func TestSessionsActiveGaugeIncDec(t *testing.T) {
	before := testutil.ToFloat64(SessionsActive)
	SessionsActive.Inc()
	SessionsActive.Inc()
	SessionsActive.Dec()
	after := testutil.ToFloat64(SessionsActive)
	if after != before+1 {
		t.Errorf("SessionsActive after Inc/Inc/Dec = %v, want %v", after, before+1)
	}
}

func TestStageDurationObservesByLabel(t *testing.T) {
	StageDuration.WithLabelValues("asr").Observe(0.2)
	if got := testutil.CollectAndCount(StageDuration); got == 0 {
		t.Error("StageDuration should have at least one observed series")
	}
}

func TestErrorsCounterVecByLabels(t *testing.T) {
	before := testutil.ToFloat64(Errors.WithLabelValues("llm", "timeout"))
	Errors.WithLabelValues("llm", "timeout").Inc()
	after := testutil.ToFloat64(Errors.WithLabelValues("llm", "timeout"))
	if after != before+1 {
		t.Errorf("Errors{llm,timeout} after Inc = %v, want %v", after, before+1)
	}
}
