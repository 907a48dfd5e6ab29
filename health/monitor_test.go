package health

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMonitorSnapshotReportsFreshFeedAsNotStale(t *testing.T) {
	m := NewMonitor(30 * time.Second)
	m.Heartbeat("odds_feed")

	snap := m.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Snapshot() returned %d entries, want 1", len(snap))
	}
	if snap[0].Stale {
		t.Error("expected a feed heartbeated moments ago to be reported fresh")
	}
}

func TestMonitorSnapshotReportsStaleFeedAfterThreshold(t *testing.T) {
	m := NewMonitor(time.Minute)
	fakeNow := time.Now()
	m.nowFn = func() time.Time { return fakeNow }
	m.Heartbeat("sports_feed")

	m.nowFn = func() time.Time { return fakeNow.Add(2 * time.Minute) }
	snap := m.Snapshot()
	if len(snap) != 1 || !snap[0].Stale {
		t.Errorf("expected the feed to be reported stale after the threshold elapsed, got %+v", snap)
	}
}

func TestMonitorSnapshotOmitsFeedsNeverHeartbeated(t *testing.T) {
	m := NewMonitor(time.Minute)
	if snap := m.Snapshot(); len(snap) != 0 {
		t.Errorf("expected no entries for a monitor with no heartbeats, got %+v", snap)
	}
}

func TestHandlerReportsDegradedWhenAnyFeedIsStale(t *testing.T) {
	m := NewMonitor(time.Minute)
	fakeNow := time.Now()
	m.nowFn = func() time.Time { return fakeNow }
	m.Heartbeat("odds_feed")
	m.nowFn = func() time.Time { return fakeNow.Add(5 * time.Minute) }

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	m.Handler()(rr, req)

	var body healthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding handler response: %v", err)
	}
	if body.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", body.Status)
	}
}

func TestHandlerReportsOkWhenNoFeedIsStale(t *testing.T) {
	m := NewMonitor(time.Minute)
	m.Heartbeat("odds_feed")

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	m.Handler()(rr, req)

	var body healthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding handler response: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("Status = %q, want ok", body.Status)
	}
}
