package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/armorclaw/diagnostics/internal/bus"
	errsys "github.com/armorclaw/diagnostics/pkg/errors"
)

func TestSnapshotTracksCounts(t *testing.T) {
	r := New()

	r.RecordError(errsys.DomainNetwork, errsys.SeverityWarning)
	r.RecordError(errsys.DomainDatabase, errsys.SeverityCritical)
	r.RecordRetry(RetryOutcomeSuccess)
	r.RecordLogWrite()
	r.RecordLogWrite()
	r.RecordLogWrite()
	r.RecordRotation()
	r.RecordRedactions("email", 4)
	r.RecordRedactions("email", 0)

	snap := r.Snapshot()
	want := map[string]int64{
		"errors":     2,
		"retries":    1,
		"log_writes": 3,
		"rotations":  1,
		"redactions": 4,
	}
	for key, n := range want {
		if snap[key] != n {
			t.Errorf("snapshot[%q] = %d, want %d", key, snap[key], n)
		}
	}
}

func TestRecordersAreIsolated(t *testing.T) {
	a := New()
	b := New()

	a.RecordError(errsys.DomainNetwork, errsys.SeverityWarning)

	got := testutil.ToFloat64(a.errorsTotal.WithLabelValues("network", "WARNING"))
	if got != 1 {
		t.Errorf("Expected 1 on the recording instance, got %v", got)
	}
	other := testutil.ToFloat64(b.errorsTotal.WithLabelValues("network", "WARNING"))
	if other != 0 {
		t.Errorf("Expected 0 on the untouched instance, got %v", other)
	}
}

func TestGaugesFollowSetters(t *testing.T) {
	r := New()

	r.SetWindowSize(42)
	if got := testutil.ToFloat64(r.windowSize); got != 42 {
		t.Errorf("Expected window size 42, got %v", got)
	}

	r.SetConnectivity(true)
	if got := testutil.ToFloat64(r.connectivity); got != 1 {
		t.Errorf("Expected connectivity 1, got %v", got)
	}
	r.SetConnectivity(false)
	if got := testutil.ToFloat64(r.connectivity); got != 0 {
		t.Errorf("Expected connectivity 0, got %v", got)
	}
}

func TestRegistryExposesFamilies(t *testing.T) {
	r := New()
	r.RecordError(errsys.DomainNetwork, errsys.SeverityWarning)
	r.ObserveProbe(120 * time.Millisecond)

	families, err := r.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{"diag_errors_total", "diag_probe_duration_seconds"} {
		if !names[want] {
			t.Errorf("Expected family %q in registry output", want)
		}
	}
}

func TestWatchBusTranslatesEvents(t *testing.T) {
	events := bus.New(bus.DefaultConfig(), nil)
	defer events.Stop()

	r := New()
	stop := r.WatchBus(events)

	events.Publish(bus.NewErrorEvent(errsys.E(errsys.KindTimeout), "sync"))
	events.Publish(bus.NewLogEvent("[it] line", errsys.SeverityInfo))
	events.Publish(bus.NewRotationEvent("diag-20260101-000000-000000001.log"))
	events.Publish(bus.NewStatusEvent("connected", "wifi"))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		snap := r.Snapshot()
		if snap["errors"] == 1 && snap["log_writes"] == 1 && snap["rotations"] == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	stop()

	snap := r.Snapshot()
	if snap["errors"] != 1 {
		t.Errorf("Expected 1 error from the bus feed, got %d", snap["errors"])
	}
	if snap["log_writes"] != 1 {
		t.Errorf("Expected 1 log write from the bus feed, got %d", snap["log_writes"])
	}
	if snap["rotations"] != 1 {
		t.Errorf("Expected 1 rotation from the bus feed, got %d", snap["rotations"])
	}
	if got := testutil.ToFloat64(r.connectivity); got != 1 {
		t.Errorf("Expected connectivity gauge 1, got %v", got)
	}

	// After stop the feed no longer applies bus traffic.
	events.Publish(bus.NewStatusEvent("disconnected", "wifi"))
	time.Sleep(20 * time.Millisecond)
	if got := testutil.ToFloat64(r.connectivity); got != 1 {
		t.Errorf("Expected gauge unchanged after stop, got %v", got)
	}
}
