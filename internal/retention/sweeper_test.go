package retention

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeLedger struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (f *fakeLedger) PruneBefore(cutoff time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return 2
}

type fakeJournal struct {
	mu      sync.Mutex
	errs    []error
	calls   int
	cutoffs []time.Time
}

func (f *fakeJournal) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return 0, err
	}
	return 3, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweepUsesWindows(t *testing.T) {
	t.Parallel()
	ledger := &fakeLedger{}
	journal := &fakeJournal{}
	s := NewSweeper(ledger, journal, Config{
		Interval:         time.Minute,
		LedgerWindow:     10 * time.Minute,
		JournalRetention: 24 * time.Hour,
	}, discardLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Sweep(context.Background())

	if len(ledger.cutoffs) != 1 || !ledger.cutoffs[0].Equal(now.Add(-10*time.Minute)) {
		t.Fatalf("ledger cutoffs = %v", ledger.cutoffs)
	}
	if len(journal.cutoffs) != 1 || !journal.cutoffs[0].Equal(now.Add(-24*time.Hour)) {
		t.Fatalf("journal cutoffs = %v", journal.cutoffs)
	}
}

func TestSweepWithoutJournal(t *testing.T) {
	t.Parallel()
	ledger := &fakeLedger{}
	s := NewSweeper(ledger, nil, Config{Interval: time.Minute, LedgerWindow: time.Minute}, discardLogger())
	s.Sweep(context.Background())
	if len(ledger.cutoffs) != 1 {
		t.Fatalf("ledger pruned %d times, want 1", len(ledger.cutoffs))
	}
}

func TestPruneJournalRetriesBusy(t *testing.T) {
	t.Parallel()
	journal := &fakeJournal{errs: []error{errors.New("SQLITE_BUSY: database busy")}}

	n, err := pruneJournalWithRetry(context.Background(), journal, time.Now(), discardLogger())
	if err != nil {
		t.Fatalf("pruneJournalWithRetry() error = %v", err)
	}
	if n != 3 || journal.calls != 2 {
		t.Fatalf("n = %d calls = %d, want 3 and 2", n, journal.calls)
	}
}

func TestPruneJournalGivesUp(t *testing.T) {
	t.Parallel()
	busy := errors.New("database is locked")
	journal := &fakeJournal{errs: []error{busy, busy, busy, busy}}

	if _, err := pruneJournalWithRetry(context.Background(), journal, time.Now(), discardLogger()); !errors.Is(err, busy) {
		t.Fatalf("error = %v, want wrapped %v", err, busy)
	}
	if journal.calls != 3 {
		t.Fatalf("calls = %d, want 3", journal.calls)
	}
}

func TestPruneJournalDoesNotRetryOtherErrors(t *testing.T) {
	t.Parallel()
	journal := &fakeJournal{errs: []error{errors.New("no such table")}}

	if _, err := pruneJournalWithRetry(context.Background(), journal, time.Now(), discardLogger()); err == nil {
		t.Fatal("expected error")
	}
	if journal.calls != 1 {
		t.Fatalf("calls = %d, want 1", journal.calls)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	ledger := &fakeLedger{}
	s := NewSweeper(ledger, nil, Config{Interval: 5 * time.Millisecond, LedgerWindow: time.Minute}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		ledger.mu.Lock()
		n := len(ledger.cutoffs)
		ledger.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sweeper never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
