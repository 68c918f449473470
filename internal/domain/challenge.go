package domain

import (
	"fmt"
	"math/rand/v2"
)

// CorrectAnswer is the only acceptable option of every challenge.
const CorrectAnswer = "I am not a spammer"

// distractorPool holds the incorrect options a challenge draws from.
var distractorPool = []string{
	"I am a spam bot and proud of it",
	"I send spam 24/7",
	"Spam is my profession",
	"Casino ads are my calling",
	"I sell crypto courses",
	"Seasoned MLM marketer",
	"Fake news is my bread",
	"I boost follower counts",
	"Advertising broadcast bot",
}

// DistractorPool returns a copy of the incorrect option pool.
func DistractorPool() []string {
	out := make([]string, len(distractorPool))
	copy(out, distractorPool)
	return out
}

// Challenge is the quiz shown to a new participant.
type Challenge struct {
	Question      string
	Options       []string
	CorrectOption int
}

// NewChallenge builds a challenge with two distinct distractors and the
// correct answer at a random position.
func NewChallenge(p Profile, rng *rand.Rand) Challenge {
	picks := rng.Perm(len(distractorPool))[:2]
	options := []string{distractorPool[picks[0]], distractorPool[picks[1]], CorrectAnswer}
	rng.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})

	correct := 0
	for i, opt := range options {
		if opt == CorrectAnswer {
			correct = i
			break
		}
	}

	return Challenge{
		Question:      fmt.Sprintf("Welcome, %s!\nAnswer the question or leave the group", p.DisplayName()),
		Options:       options,
		CorrectOption: correct,
	}
}
