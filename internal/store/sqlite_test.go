package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/gatekeeper/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "journal", "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func event(typ domain.EventType, chatID, userID int64, at time.Time) domain.Event {
	return domain.NewEvent(typ, domain.Key{ChatID: chatID, UserID: userID}, at)
}

func TestSQLiteRecordAndTotals(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	evs := []domain.Event{
		event(domain.EventSessionCreated, -1, 10, now),
		event(domain.EventSessionAdmitted, -1, 10, now),
		event(domain.EventSessionCreated, -1, 11, now),
		event(domain.EventSessionRejected, -1, 11, now),
	}
	for _, e := range evs {
		if err := s.RecordEvent(ctx, e); err != nil {
			t.Fatalf("RecordEvent() error = %v", err)
		}
	}
	// Same id again is ignored.
	if err := s.RecordEvent(ctx, evs[0]); err != nil {
		t.Fatalf("RecordEvent(duplicate) error = %v", err)
	}

	totals, err := s.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals() error = %v", err)
	}
	if totals[domain.EventSessionCreated] != 2 {
		t.Fatalf("created = %d, want 2", totals[domain.EventSessionCreated])
	}
	if totals[domain.EventSessionAdmitted] != 1 || totals[domain.EventSessionRejected] != 1 {
		t.Fatalf("unexpected totals %v", totals)
	}
}

func TestSQLiteRecentNewestFirst(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		e := event(domain.EventSessionRejected, -7, int64(100+i), base.Add(time.Duration(i)*time.Minute))
		e.Name = "user"
		e.Reason = domain.ReasonTimeout
		if err := s.RecordEvent(ctx, e); err != nil {
			t.Fatalf("RecordEvent() error = %v", err)
		}
	}
	if err := s.RecordEvent(ctx, event(domain.EventSessionCreated, -8, 1, base)); err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}

	got, err := s.Recent(ctx, -7, 3)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recent() len = %d, want 3", len(got))
	}
	if got[0].UserID != 104 || got[2].UserID != 102 {
		t.Fatalf("Recent() order = %d..%d, want 104..102", got[0].UserID, got[2].UserID)
	}
	if got[0].Reason != domain.ReasonTimeout || got[0].Name != "user" {
		t.Fatalf("Recent() lost fields: %+v", got[0])
	}
}

func TestSQLitePruneBefore(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	old := event(domain.EventSessionCreated, -1, 1, now.Add(-48*time.Hour))
	fresh := event(domain.EventSessionCreated, -1, 2, now)
	for _, e := range []domain.Event{old, fresh} {
		if err := s.RecordEvent(ctx, e); err != nil {
			t.Fatalf("RecordEvent() error = %v", err)
		}
	}

	n, err := s.PruneBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneBefore() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("PruneBefore() removed %d, want 1", n)
	}
	got, err := s.Recent(ctx, -1, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != fresh.ID {
		t.Fatalf("remaining events = %+v, want only %s", got, fresh.ID)
	}
}

func TestWriterFlushesOnShutdown(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	w := NewWriter(s, 16, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for i := 0; i < 4; i++ {
		w.Publish(event(domain.EventSessionAdmitted, -1, int64(i), time.Now()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	totals, err := s.Totals(context.Background())
	if err != nil {
		t.Fatalf("Totals() error = %v", err)
	}
	if totals[domain.EventSessionAdmitted] != 4 {
		t.Fatalf("admitted = %d, want 4", totals[domain.EventSessionAdmitted])
	}
}

func TestWriterDropsWhenFull(t *testing.T) {
	t.Parallel()
	w := NewWriter(nil, 1, slog.New(slog.NewTextHandler(io.Discard, nil)))

	w.Publish(event(domain.EventSessionCreated, -1, 1, time.Now()))
	w.Publish(event(domain.EventSessionCreated, -1, 2, time.Now()))

	if got := w.Dropped(); got != 1 {
		t.Fatalf("Dropped() = %d, want 1", got)
	}
}
