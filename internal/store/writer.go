package store

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ashureev/gatekeeper/internal/domain"
)

const writeTimeout = 5 * time.Second

// Writer records events asynchronously so publishers never wait on disk.
type Writer struct {
	repo    Repository
	queue   chan domain.Event
	logger  *slog.Logger
	dropped atomic.Int64
}

// NewWriter creates a writer with a queue of the given size.
func NewWriter(repo Repository, queueSize int, logger *slog.Logger) *Writer {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Writer{
		repo:   repo,
		queue:  make(chan domain.Event, queueSize),
		logger: logger,
	}
}

// Publish implements domain.Publisher. Events are dropped when the queue is full.
func (w *Writer) Publish(e domain.Event) {
	select {
	case w.queue <- e:
	default:
		n := w.dropped.Add(1)
		w.logger.Warn("Journal queue full, dropping event",
			"event_id", e.ID, "type", e.Type, "dropped_total", n)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (w *Writer) Dropped() int64 {
	return w.dropped.Load()
}

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.flush()
			return nil
		case e := <-w.queue:
			w.write(context.Background(), e)
		}
	}
}

func (w *Writer) flush() {
	for {
		select {
		case e := <-w.queue:
			w.write(context.Background(), e)
		default:
			return
		}
	}
}

func (w *Writer) write(parent context.Context, e domain.Event) {
	ctx, cancel := context.WithTimeout(parent, writeTimeout)
	defer cancel()
	if err := w.repo.RecordEvent(ctx, e); err != nil {
		w.logger.Error("Failed to record event", "event_id", e.ID, "type", e.Type, "error", err)
	}
}

var _ domain.Publisher = (*Writer)(nil)
