package verification

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ashureev/gatekeeper/internal/domain"
)

func TestSessionStoreInsertRejectsDuplicate(t *testing.T) {
	t.Parallel()

	st := NewSessionStore()
	key := domain.Key{ChatID: -100, UserID: 7}
	if !st.Insert(&domain.Session{Key: key, ChallengeID: "p1"}) {
		t.Fatal("expected first insert to succeed")
	}
	if st.Insert(&domain.Session{Key: key, ChallengeID: "p2"}) {
		t.Fatal("expected duplicate insert to fail")
	}
	got, ok := st.Get(key)
	if !ok || got.ChallengeID != "p1" {
		t.Fatalf("expected original session, got %+v", got)
	}
}

func TestSessionStoreKeysOnChatAndUser(t *testing.T) {
	t.Parallel()

	st := NewSessionStore()
	a := domain.Key{ChatID: -1, UserID: 7}
	b := domain.Key{ChatID: -2, UserID: 7}
	st.Insert(&domain.Session{Key: a, ChallengeID: "pa"})
	st.Insert(&domain.Session{Key: b, ChallengeID: "pb"})

	if st.Len() != 2 {
		t.Fatalf("expected two independent sessions, got %d", st.Len())
	}
	if _, ok := st.Take(a, ""); !ok {
		t.Fatal("expected take of first chat to succeed")
	}
	if !st.Has(b) {
		t.Fatal("taking one chat must not touch the other")
	}
}

func TestSessionStoreTakeMatchesChallenge(t *testing.T) {
	t.Parallel()

	st := NewSessionStore()
	key := domain.Key{ChatID: -100, UserID: 7}
	st.Insert(&domain.Session{Key: key, ChallengeID: "p1"})

	if _, ok := st.Take(key, "stale"); ok {
		t.Fatal("expected take with foreign challenge to fail")
	}
	if _, ok := st.Take(key, "p1"); !ok {
		t.Fatal("expected take with matching challenge to succeed")
	}
	if _, ok := st.Take(key, ""); ok {
		t.Fatal("expected second take to fail")
	}
	if _, ok := st.FindByChallenge(7, "p1"); ok {
		t.Fatal("challenge index must be cleared on take")
	}
}

func TestSessionStoreFindByChallengeChecksUser(t *testing.T) {
	t.Parallel()

	st := NewSessionStore()
	key := domain.Key{ChatID: -100, UserID: 7}
	st.Insert(&domain.Session{Key: key, ChallengeID: "p1"})

	if _, ok := st.FindByChallenge(8, "p1"); ok {
		t.Fatal("another user's answer must not match")
	}
	got, ok := st.FindByChallenge(7, "p1")
	if !ok || got != key {
		t.Fatalf("expected %v, got %v (ok=%v)", key, got, ok)
	}
}

func TestSessionStoreConcurrentTakeHasOneWinner(t *testing.T) {
	t.Parallel()

	for trial := 0; trial < 100; trial++ {
		st := NewSessionStore()
		key := domain.Key{ChatID: -100, UserID: int64(trial)}
		st.Insert(&domain.Session{Key: key, ChallengeID: "p"})

		var winners atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, ok := st.Take(key, ""); ok {
					winners.Add(1)
				}
			}()
		}
		wg.Wait()

		if got := winners.Load(); got != 1 {
			t.Fatalf("trial %d: expected exactly one winner, got %d", trial, got)
		}
	}
}
