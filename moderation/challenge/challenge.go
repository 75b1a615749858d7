// Per-member verification challenges, with expiry and single-flight semantics.
package challenge

import (
	"errors"
	"strings"
	"time"
)

// How long a member has to answer a challenge once it has been issued.
var DefaultTTL = 5 * time.Minute

var (
	ErrAlreadyPending  = errors.New("verification challenge already pending")
	ErrAlreadyVerified = errors.New("member already verified")
)

type Question struct {
	Prompt string
	Answer string
}

// Fixed pool which challenges are drawn from, uniformly at random.
var Questions = []Question{
	{Prompt: "What is 2 + 3? (answer with a number)", Answer: "5"},
	{Prompt: "What color is a clear daytime sky?", Answer: "Blue"},
	{Prompt: "Type the word \"verify\" spelled backwards.", Answer: "yfirev"},
}

// A single outstanding challenge. Immutable once issued.
type Challenge struct {
	UserID   string
	Question string
	// Normalized (lower-case) expected answer
	Answer string
	// Guild where the verified role must be assigned on success
	GuildID   string
	ExpiresAt time.Time
}

func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Outcome of submitting an answer.
type Verdict int

const (
	NoChallenge Verdict = iota
	Correct
	Incorrect
	Expired
)

func (v Verdict) String() string {
	switch v {
	case Correct:
		return "correct"
	case Incorrect:
		return "incorrect"
	case Expired:
		return "expired"
	default:
		return "none"
	}
}

// Trims surrounding whitespace and lower-cases an answer, so comparisons are case-insensitive.
func NormalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
