package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rpattn/entityhistory/internal/snapshot"
)

func newTestMetrics(t *testing.T) (*SnapshotMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewSnapshotMetrics(reg), reg
}

func TestObserveSnapshotCountsOutcomes(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ObserveSnapshot(snapshot.Observation{EntityType: "Pump", Outcome: snapshot.OutcomeOK, Changes: 2, PropertyChanges: 3, Properties: 2, Duration: time.Millisecond})
	m.ObserveSnapshot(snapshot.Observation{EntityType: "Pump", Outcome: snapshot.OutcomeOK, Duration: time.Millisecond})
	m.ObserveSnapshot(snapshot.Observation{EntityType: "Pump", Outcome: snapshot.OutcomeAbsent})
	m.ObserveSnapshot(snapshot.Observation{EntityType: "Valve", Outcome: snapshot.OutcomeError})

	if got := testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues("Pump", "ok")); got != 2 {
		t.Errorf("expected 2 ok snapshots, got %v", got)
	}
	if got := testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues("Pump", "absent")); got != 1 {
		t.Errorf("expected 1 absent snapshot, got %v", got)
	}
	if got := testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues("Valve", "error")); got != 1 {
		t.Errorf("expected 1 failed snapshot, got %v", got)
	}
	if got := testutil.CollectAndCount(m.DurationSeconds); got != 2 {
		t.Errorf("expected duration series for 2 entity types, got %d", got)
	}
}

func TestObserveSnapshotSkipsPropertyChangesOnFailure(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ObserveSnapshot(snapshot.Observation{EntityType: "Pump", Outcome: snapshot.OutcomeError, PropertyChanges: 5})
	m.ObserveSnapshot(snapshot.Observation{EntityType: "Pump", Outcome: snapshot.OutcomeOK, PropertyChanges: 5})

	expected := `
# HELP entityhistory_snapshot_property_changes Number of property changes walked per reconstruction
# TYPE entityhistory_snapshot_property_changes histogram
entityhistory_snapshot_property_changes_bucket{le="1"} 0
entityhistory_snapshot_property_changes_bucket{le="4"} 0
entityhistory_snapshot_property_changes_bucket{le="16"} 1
entityhistory_snapshot_property_changes_bucket{le="64"} 1
entityhistory_snapshot_property_changes_bucket{le="256"} 1
entityhistory_snapshot_property_changes_bucket{le="1024"} 1
entityhistory_snapshot_property_changes_bucket{le="4096"} 1
entityhistory_snapshot_property_changes_bucket{le="16384"} 1
entityhistory_snapshot_property_changes_bucket{le="+Inf"} 1
entityhistory_snapshot_property_changes_sum 5
entityhistory_snapshot_property_changes_count 1
`
	if err := testutil.CollectAndCompare(m.PropertyChanges, strings.NewReader(expected)); err != nil {
		t.Fatal(err)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.ObserveSnapshot(snapshot.Observation{EntityType: "Pump", Outcome: snapshot.OutcomeOK})

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `entityhistory_snapshots_total{entity_type="Pump",outcome="ok"} 1`) {
		t.Fatalf("metrics output missing counter:\n%s", rec.Body.String())
	}
}
