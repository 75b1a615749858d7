package challenge

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/wardenbot/warden/moderation/allowlist"
)

// Process-wide registry of outstanding challenges, keyed by user ID.
//
// At most one challenge exists per user at any time. Expiry is evaluated lazily when an answer is submitted; there is no background sweep, so an expired challenge which is never answered stays in memory until it is replaced by a fresh Start.
type Registry struct {
	Allowed   allowlist.AllowList
	Questions []Question
	TTL       time.Duration
	// Clock and question picker, swappable in tests
	Now  func() time.Time
	Pick func(n int) int

	mu      sync.Mutex
	pending map[string]*Challenge
}

func NewRegistry(allowed allowlist.AllowList) *Registry {
	return &Registry{
		Allowed:   allowed,
		Questions: Questions,
		TTL:       DefaultTTL,
		Now:       time.Now,
		Pick:      rand.IntN,
		pending:   make(map[string]*Challenge),
	}
}

// Issues a new challenge for the user, to be completed for the given guild.
//
// Returns ErrAlreadyVerified if the user is on the allow-list, and ErrAlreadyPending if an unexpired challenge is outstanding. An expired challenge which was never answered is replaced.
func (r *Registry) Start(ctx context.Context, userID, guildID string) (*Challenge, error) {
	ok, err := r.Allowed.Contains(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, ErrAlreadyVerified
	}

	now := r.Now()
	q := r.Questions[r.Pick(len(r.Questions))]

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.pending[userID]; ok && !prev.Expired(now) {
		return nil, ErrAlreadyPending
	}
	c := &Challenge{
		UserID:    userID,
		Question:  q.Prompt,
		Answer:    NormalizeAnswer(q.Answer),
		GuildID:   guildID,
		ExpiresAt: now.Add(r.TTL),
	}
	r.pending[userID] = c
	return c, nil
}

// Evaluates an answer against the user's outstanding challenge.
//
// Expiry takes priority over correctness. Correct and Expired are terminal and remove the challenge; Incorrect leaves it in place so the user can retry until it expires. The returned challenge is nil only for NoChallenge.
func (r *Registry) Submit(userID, answer string) (Verdict, *Challenge) {
	now := r.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.pending[userID]
	if !ok {
		return NoChallenge, nil
	}
	if c.Expired(now) {
		delete(r.pending, userID)
		return Expired, c
	}
	if NormalizeAnswer(answer) != c.Answer {
		return Incorrect, c
	}
	delete(r.pending, userID)
	return Correct, c
}

// Unconditionally removes any challenge for the user. Used when the question could not be delivered.
func (r *Registry) Cancel(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, userID)
}

// Returns true if the user has a challenge in the registry, expired or not.
func (r *Registry) Pending(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[userID]
	return ok
}

// Number of challenges held in memory, including expired ones not yet answered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
