package domain

import (
	"math/rand/v2"
	"strings"
	"testing"
)

func TestNewChallengeHasOneCorrectAndTwoDistinctDistractors(t *testing.T) {
	t.Parallel()

	pool := make(map[string]bool)
	for _, opt := range DistractorPool() {
		pool[opt] = true
	}

	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 500; i++ {
		c := NewChallenge(Profile{FirstName: "Ann"}, rng)
		if len(c.Options) != 3 {
			t.Fatalf("expected 3 options, got %d", len(c.Options))
		}
		if c.Options[c.CorrectOption] != CorrectAnswer {
			t.Fatalf("correct index %d points at %q", c.CorrectOption, c.Options[c.CorrectOption])
		}

		correct := 0
		seen := make(map[string]bool)
		for _, opt := range c.Options {
			if opt == CorrectAnswer {
				correct++
				continue
			}
			if !pool[opt] {
				t.Fatalf("distractor %q is not from the pool", opt)
			}
			if seen[opt] {
				t.Fatalf("distractor %q drawn twice", opt)
			}
			seen[opt] = true
		}
		if correct != 1 {
			t.Fatalf("expected exactly one correct option, got %d", correct)
		}
	}
}

func TestNewChallengeRandomizesCorrectPosition(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(42, 7))
	positions := make(map[int]int)
	for i := 0; i < 300; i++ {
		positions[NewChallenge(Profile{}, rng).CorrectOption]++
	}
	for idx := 0; idx < 3; idx++ {
		if positions[idx] == 0 {
			t.Fatalf("correct option never landed at index %d: %v", idx, positions)
		}
	}
}

func TestNewChallengeQuestionUsesDisplayName(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(3, 3))
	c := NewChallenge(Profile{FirstName: "Ann", Username: "ann_k"}, rng)
	if !strings.Contains(c.Question, "ann_k") {
		t.Fatalf("expected username in question: %q", c.Question)
	}

	c = NewChallenge(Profile{}, rng)
	if !strings.Contains(c.Question, "new member") {
		t.Fatalf("expected fallback name in question: %q", c.Question)
	}
}
