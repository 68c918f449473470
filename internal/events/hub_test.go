package events

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/gatekeeper/internal/domain"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHubDeliversToEverySubscriber(t *testing.T) {
	t.Parallel()
	hub := NewHub(4, discardLogger())
	a, unsubA := hub.Subscribe("a")
	b, unsubB := hub.Subscribe("b")
	defer unsubA()
	defer unsubB()

	e := domain.NewEvent(domain.EventSessionCreated, domain.Key{ChatID: -1, UserID: 2}, time.Now())
	hub.Publish(e)

	for name, ch := range map[string]<-chan domain.Event{"a": a, "b": b} {
		select {
		case got := <-ch:
			if got.ID != e.ID {
				t.Fatalf("%s received %s, want %s", name, got.ID, e.ID)
			}
		default:
			t.Fatalf("%s received nothing", name)
		}
	}
}

func TestHubDropsForLaggingSubscriber(t *testing.T) {
	t.Parallel()
	hub := NewHub(1, discardLogger())
	ch, unsub := hub.Subscribe("slow")
	defer unsub()

	key := domain.Key{ChatID: -1, UserID: 2}
	hub.Publish(domain.NewEvent(domain.EventSessionCreated, key, time.Now()))
	hub.Publish(domain.NewEvent(domain.EventSessionAdmitted, key, time.Now()))

	got := <-ch
	if got.Type != domain.EventSessionCreated {
		t.Fatalf("first event = %s, want %s", got.Type, domain.EventSessionCreated)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected buffered event %s", extra.Type)
	default:
	}
}

func TestHubUnsubscribeIsIdempotent(t *testing.T) {
	t.Parallel()
	hub := NewHub(1, discardLogger())
	ch, unsub := hub.Subscribe("x")
	unsub()
	unsub()

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	if hub.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", hub.Len())
	}
	hub.Publish(domain.NewEvent(domain.EventSessionCreated, domain.Key{}, time.Now()))
}

func TestHubStaleUnsubscribeKeepsReplacement(t *testing.T) {
	t.Parallel()
	hub := NewHub(1, discardLogger())
	_, unsubOld := hub.Subscribe("tab")
	fresh, unsubNew := hub.Subscribe("tab")
	defer unsubNew()

	unsubOld()
	if hub.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", hub.Len())
	}
	hub.Publish(domain.NewEvent(domain.EventSessionCreated, domain.Key{}, time.Now()))
	if _, ok := <-fresh; !ok {
		t.Fatal("replacement subscriber should still receive events")
	}
}

func TestHubConcurrentAccess(t *testing.T) {
	t.Parallel()
	hub := NewHub(8, discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, unsub := hub.Subscribe("obs-" + strconv.Itoa(i))
			unsub()
		}(i)
		go func() {
			defer wg.Done()
			hub.Publish(domain.NewEvent(domain.EventLedgerPurged, domain.Key{}, time.Now()))
		}()
	}
	wg.Wait()
}

func TestWebSocketHandlerAuth(t *testing.T) {
	t.Parallel()

	disabled := NewWebSocketHandler(NewHub(1, discardLogger()), "", discardLogger())
	rec := httptest.NewRecorder()
	disabled.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/events", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("disabled status = %d, want 404", rec.Code)
	}

	h := NewWebSocketHandler(NewHub(1, discardLogger()), "s3cret", discardLogger())
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/events?token=wrong", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/events?token=s3cret&chat_id=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad chat_id status = %d, want 400", rec.Code)
	}
}

func TestWebSocketHandlerStreamsFilteredEvents(t *testing.T) {
	t.Parallel()
	hub := NewHub(8, discardLogger())
	srv := httptest.NewServer(NewWebSocketHandler(hub, "s3cret", discardLogger()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=s3cret&chat_id=-42"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("observer never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	other := domain.NewEvent(domain.EventSessionCreated, domain.Key{ChatID: -7, UserID: 1}, time.Now())
	want := domain.NewEvent(domain.EventSessionRejected, domain.Key{ChatID: -42, UserID: 9}, time.Now())
	want.Reason = domain.ReasonTimeout
	hub.Publish(other)
	hub.Publish(want)

	var got domain.Event
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.ID != want.ID || got.Reason != domain.ReasonTimeout {
		t.Fatalf("received %+v, want %+v", got, want)
	}
}

type staticBacklog []domain.Event

func (b staticBacklog) Recent(_ context.Context, chatID int64, limit int) ([]domain.Event, error) {
	var out []domain.Event
	for _, e := range b {
		if e.ChatID == chatID && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestWebSocketHandlerReplaysBacklogOldestFirst(t *testing.T) {
	t.Parallel()
	newer := domain.NewEvent(domain.EventSessionRejected, domain.Key{ChatID: -5, UserID: 2}, time.Now())
	older := domain.NewEvent(domain.EventSessionCreated, domain.Key{ChatID: -5, UserID: 2}, time.Now().Add(-time.Minute))

	h := NewWebSocketHandler(NewHub(4, discardLogger()), "tok", discardLogger())
	h.SetBacklog(staticBacklog{newer, older})
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/?token=tok&chat_id=-5", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for _, want := range []domain.Event{older, newer} {
		var got domain.Event
		if err := wsjson.Read(ctx, conn, &got); err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if got.ID != want.ID {
			t.Fatalf("replayed %s, want %s", got.ID, want.ID)
		}
	}
}
