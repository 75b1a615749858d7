package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/wardenbot/warden/moderation/allowlist"
	"github.com/wardenbot/warden/moderation/platform"
	"github.com/wardenbot/warden/moderation/ratewindow"
)

// Manually advanced clock for tests.
type TestClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewTestClock() *TestClock {
	return &TestClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *TestClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *TestClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Builds an engine over a MockClient with a single guild ("g1", owned by "owner1") holding an unverified member "user1" and a verified member "user2".
//
// Challenges always pick the first question. Callers should Close the engine to cancel pending prompt deletions.
func EngineTestFixture() (*Engine, *platform.MockClient, *TestClock) {
	mc := platform.NewMockClient()
	mc.AddGuild("g1", "Test Guild", platform.User{ID: "owner1", Tag: "owner"})
	mc.AddMember("g1", platform.User{ID: "user1", Tag: "newbie"})
	mc.AddMember("g1", platform.User{ID: "user2", Tag: "regular"})

	clock := NewTestClock()
	eng := NewEngine(mc, allowlist.NewMemAllowList("user2"), ratewindow.NewMemTracker(), DefaultConfig(), slog.Default())
	eng.Now = clock.Now
	eng.Challenges.Now = clock.Now
	eng.Challenges.Pick = func(n int) int { return 0 }
	return eng, mc, clock
}
