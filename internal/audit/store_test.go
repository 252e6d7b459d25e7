package audit

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/controldesk/controldesk/internal/board"
	"github.com/controldesk/controldesk/internal/control"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := NewStore(dbPath, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func ts(offset time.Duration) string {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Add(offset).Format(TimeLayout)
}

func TestLogAndQuery(t *testing.T) {
	store := newTestStore(t)

	store.Log(Entry{ID: "e1", Timestamp: ts(0), Type: "status_advanced", ControlID: "C1", FromStatus: "Not Started", ToStatus: "In Progress", OK: true})
	store.Log(Entry{ID: "e2", Timestamp: ts(time.Minute), Type: "persist_failed", ControlID: "C1", Message: "service unavailable"})
	store.Log(Entry{ID: "e3", Timestamp: ts(2 * time.Minute), Type: "status_advanced", ControlID: "C2", OK: true})
	store.Flush()

	all, err := store.Query(QueryOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d entries, want 3", len(all))
	}
	if all[0].ID != "e3" {
		t.Errorf("newest first: got %s", all[0].ID)
	}

	byControl, _ := store.Query(QueryOpts{ControlID: "C1"})
	if len(byControl) != 2 {
		t.Errorf("C1 entries = %d, want 2", len(byControl))
	}

	byType, _ := store.Query(QueryOpts{Type: "persist_failed"})
	if len(byType) != 1 || byType[0].Message != "service unavailable" {
		t.Errorf("unexpected persist_failed entries: %+v", byType)
	}
	if byType[0].OK {
		t.Error("persist_failed entry should not be ok")
	}

	since, _ := store.Query(QueryOpts{Since: ts(time.Minute)})
	if len(since) != 2 {
		t.Errorf("since entries = %d, want 2", len(since))
	}

	search, _ := store.Query(QueryOpts{Search: "unavailable"})
	if len(search) != 1 {
		t.Errorf("search entries = %d, want 1", len(search))
	}

	limited, _ := store.Query(QueryOpts{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("limited entries = %d, want 1", len(limited))
	}
}

func TestQueryStats(t *testing.T) {
	store := newTestStore(t)
	store.Log(Entry{ID: "a", Timestamp: ts(0), Type: "status_advanced", ControlID: "C1", OK: true})
	store.Log(Entry{ID: "b", Timestamp: ts(1), Type: "status_advanced", ControlID: "C2", OK: true})
	store.Log(Entry{ID: "c", Timestamp: ts(2), Type: "persist_failed", ControlID: "C2"})
	store.Flush()

	stats, err := store.QueryStats()
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 {
		t.Fatalf("got %d stats, want 2", len(stats))
	}
	if stats[0].Type != "status_advanced" || stats[0].Count != 2 || stats[0].Failed != 0 {
		t.Errorf("stats[0] = %+v", stats[0])
	}
	if stats[1].Failed != 1 {
		t.Errorf("stats[1] = %+v", stats[1])
	}
}

func TestQueryControlActivity(t *testing.T) {
	store := newTestStore(t)
	store.Log(Entry{ID: "a", Timestamp: ts(0), Type: "status_advanced", ControlID: "C1", OK: true})
	store.Log(Entry{ID: "b", Timestamp: ts(time.Second), Type: "persist_failed", ControlID: "C1"})
	store.Log(Entry{ID: "c", Timestamp: ts(2 * time.Second), Type: "document_saved", ControlID: "C2", OK: true})
	store.Log(Entry{ID: "d", Timestamp: ts(3 * time.Second), Type: "controls_loaded", OK: true})
	store.Flush()

	activity, err := store.QueryControlActivity(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(activity) != 2 {
		t.Fatalf("got %d controls, want 2", len(activity))
	}
	if activity[0].ControlID != "C2" {
		t.Errorf("most recent first: got %s", activity[0].ControlID)
	}
	c1 := activity[1]
	if c1.Events != 2 || c1.Advances != 1 || c1.Failures != 1 {
		t.Errorf("C1 activity = %+v", c1)
	}
}

func TestPurge(t *testing.T) {
	store := newTestStore(t)
	store.Log(Entry{ID: "old", Timestamp: ts(-48 * time.Hour), Type: "controls_loaded", OK: true})
	store.Log(Entry{ID: "new", Timestamp: ts(0), Type: "controls_loaded", OK: true})
	store.Flush()

	n, err := store.Purge(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}
	left, _ := store.Query(QueryOpts{})
	if len(left) != 1 || left[0].ID != "new" {
		t.Errorf("remaining = %+v", left)
	}
}

func TestOnEvent_RecordsBoardEvents(t *testing.T) {
	store := newTestStore(t)
	store.OnEvent(board.Event{
		Type:      board.EventStatusAdvanced,
		ControlID: "SOC2-1",
		From:      control.StatusNotStarted,
		To:        control.StatusInProgress,
		OK:        true,
		Time:      time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
	})
	store.Flush()

	entries, err := store.Query(QueryOpts{ControlID: "SOC2-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.ID == "" {
		t.Error("entry should get an id")
	}
	if e.Type != "status_advanced" || e.FromStatus != "Not Started" || e.ToStatus != "In Progress" || !e.OK {
		t.Errorf("unexpected entry %+v", e)
	}
	if e.Timestamp != "2025-06-01T09:30:00.000000Z" {
		t.Errorf("timestamp = %q", e.Timestamp)
	}
}

func TestOnEvent_AfterCloseIsDropped(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := NewStore(filepath.Join(t.TempDir(), "closed.db"), logger)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	// Must not panic on the closed write channel.
	store.OnEvent(board.Event{Type: board.EventPersistFailed, ControlID: "SOC2-1", Message: "timeout"})
	store.Flush()

	if err := store.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

func TestHub_BroadcastAfterWrite(t *testing.T) {
	store := newTestStore(t)

	ch := store.Hub.Subscribe()
	defer store.Hub.Unsubscribe(ch)

	store.Log(Entry{ID: "hub-1", Timestamp: ts(0), Type: "document_saved", ControlID: "C1", OK: true})

	select {
	case entry := <-ch:
		if entry.ID != "hub-1" {
			t.Errorf("broadcast entry ID = %q, want 'hub-1'", entry.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for broadcast")
	}
}

func TestHub_UnsubscribeAndClose(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()
	if h.Subscribers() != 2 {
		t.Fatalf("subscribers = %d", h.Subscribers())
	}

	h.Unsubscribe(a)
	if _, ok := <-a; ok {
		t.Error("unsubscribed channel should be closed")
	}
	h.Unsubscribe(a) // second call is a no-op

	h.Close()
	if _, ok := <-b; ok {
		t.Error("channel should be closed by Close")
	}
	late := h.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscribe after Close should return a closed channel")
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	for i := 0; i < 200; i++ {
		h.Broadcast(Entry{ID: "x"})
	}
	if len(ch) != cap(ch) {
		t.Errorf("buffer len = %d, want %d", len(ch), cap(ch))
	}
}
