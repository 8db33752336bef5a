package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// sampleCount returns how many observations histogram h has recorded.
func sampleCount(t *testing.T, h prometheus.Metric) uint64 {
	t.Helper()
	m := &dto.Metric{}
	if err := h.Write(m); err != nil {
		t.Fatalf("writing histogram: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestTimerObserveDurationRecordsLaunchLatency(t *testing.T) {
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)

	before := sampleCount(t, LaunchLatency)
	timer.ObserveDuration(LaunchLatency)

	if got := sampleCount(t, LaunchLatency); got != before+1 {
		t.Fatalf("LaunchLatency sample count = %d, want %d", got, before+1)
	}
	if timer.Duration() < 5*time.Millisecond {
		t.Errorf("Duration() = %v, want >= 5ms", timer.Duration())
	}
}

func TestTimerObserveDurationVecRecordsCoordinatorHandlerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(time.Millisecond)

	child := CoordinatorHandlerDuration.WithLabelValues("RegisterExecutor").(prometheus.Metric)
	before := sampleCount(t, child)
	timer.ObserveDurationVec(CoordinatorHandlerDuration, "RegisterExecutor")

	if got := sampleCount(t, child); got != before+1 {
		t.Fatalf("CoordinatorHandlerDuration sample count = %d, want %d", got, before+1)
	}
}

func TestTimerDurationIsMonotonic(t *testing.T) {
	timer := NewTimer()

	first := timer.Duration()
	time.Sleep(time.Millisecond)
	second := timer.Duration()

	if second <= first {
		t.Errorf("Duration() did not advance: first=%v, second=%v", first, second)
	}
}
