// Per-member sliding windows of recent message timestamps, used to detect burst-posting.
//
// This is a deliberately simple "N messages within a trailing window" check, not a general rate limiter: there is no decay or leaky-bucket smoothing. Windows are pruned lazily when the same key records a new message.
package ratewindow

import (
	"context"
	"time"
)

var (
	DefaultWindow    = 60 * time.Second
	DefaultThreshold = 2
)

type Tracker interface {
	// Appends now to the key's window, discards entries older than the window relative to now, and returns true if the window then holds at least the threshold number of entries.
	//
	// A trip empties the window in the same atomic step, so concurrent messages from one burst trip at most once.
	Record(ctx context.Context, key string, now time.Time) (bool, error)
	// Drops the key's window entirely.
	Clear(ctx context.Context, key string) error
}

// Builds the tracker key for a member of a guild.
func MemberKey(guildID, userID string) string {
	return guildID + "/" + userID
}
