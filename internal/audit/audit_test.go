package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

	entries := []Entry{
		{SessionID: "s1", TurnID: "t1", Model: "m", Outcome: OutcomeCompleted, StatusCode: 200, ResponseChars: 5, RevealedChars: 5, Duration: 1500 * time.Millisecond, Timestamp: at},
		{SessionID: "s1", TurnID: "t2", Model: "m", Outcome: OutcomeFailed, StatusCode: 429, Error: "API Error: 429 - rate limited", Timestamp: at.Add(time.Minute)},
		{SessionID: "s2", TurnID: "t3", Model: "m", Outcome: OutcomeStopped, ResponseChars: 10, RevealedChars: 4, Timestamp: at},
	}
	for _, e := range entries {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record returned error: %v", err)
		}
	}

	got, err := store.Recent(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].TurnID != "t1" || got[1].TurnID != "t2" {
		t.Fatalf("unexpected order: %s, %s", got[0].TurnID, got[1].TurnID)
	}
	if got[0].Outcome != OutcomeCompleted || got[0].Duration != 1500*time.Millisecond {
		t.Fatalf("unexpected first entry: %+v", got[0])
	}
	if got[1].StatusCode != 429 || got[1].Error != "API Error: 429 - rate limited" {
		t.Fatalf("unexpected second entry: %+v", got[1])
	}
	if !got[0].Timestamp.Equal(at) {
		t.Fatalf("unexpected timestamp: %v", got[0].Timestamp)
	}
}

func TestRecentLimitKeepsNewest(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Record(ctx, Entry{SessionID: "s", TurnID: id, Model: "m", Outcome: OutcomeCompleted}); err != nil {
			t.Fatalf("Record returned error: %v", err)
		}
	}

	got, err := store.Recent(ctx, "s", 2)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(got) != 2 || got[0].TurnID != "b" || got[1].TurnID != "c" {
		t.Fatalf("unexpected entries: %+v", got)
	}
}
