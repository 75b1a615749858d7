package roles

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wardenbot/warden/moderation/platform"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	NoticeMissingCapability = "missing-capability"
	NoticeHierarchy         = "hierarchy"
)

func MissingCapabilityNotice(guildName string) string {
	return fmt.Sprintf("I am missing the Manage Roles permission in %s, so I cannot assign verification or rate-limit roles. "+
		"To fix this, open Server Settings > Roles, select my role, and enable Manage Roles.", guildName)
}

func HierarchyNotice(guildName, roleName string) string {
	return fmt.Sprintf("My highest role in %s is positioned at or below the %q role, so I cannot assign it. "+
		"To fix this, open Server Settings > Roles and drag my role above %q.", guildName, roleName, roleName)
}

// Sends direct messages to guild owners about problems they need to fix.
//
// Delivery is best-effort: failures are logged and never retried. Repeat notices of the same kind to the same guild are suppressed for Cooldown; a zero Cooldown disables suppression.
type OwnerNotifier struct {
	Client   platform.Client
	Logger   *slog.Logger
	Cooldown time.Duration

	mu   sync.Mutex
	sent *expirable.LRU[string, bool]
}

func NewOwnerNotifier(client platform.Client, logger *slog.Logger, cooldown time.Duration) *OwnerNotifier {
	n := &OwnerNotifier{
		Client:   client,
		Logger:   logger,
		Cooldown: cooldown,
	}
	if cooldown > 0 {
		n.sent = expirable.NewLRU[string, bool](10_000, nil, cooldown)
	}
	return n
}

// Returns true if a notice was delivered.
func (n *OwnerNotifier) Notify(ctx context.Context, guildID, kind, text string) bool {
	logger := n.Logger.With("guild", guildID, "notice", kind)
	key := guildID + "/" + kind
	if n.sent != nil {
		n.mu.Lock()
		if n.sent.Contains(key) {
			n.mu.Unlock()
			logger.Debug("suppressing repeat owner notice")
			return false
		}
		n.sent.Add(key, true)
		n.mu.Unlock()
	}

	owner, err := n.Client.GuildOwner(ctx, guildID)
	if err == nil {
		err = n.Client.SendDirectMessage(ctx, owner.ID, text)
	}
	if err != nil {
		logger.Warn("failed to notify guild owner", "err", err)
		if n.sent != nil {
			n.sent.Remove(key)
		}
		return false
	}
	logger.Info("notified guild owner", "owner", owner.ID)
	return true
}

// Guild display name for notices, falling back to the ID.
func guildLabel(ctx context.Context, c platform.Client, guildID string) string {
	name, err := c.GuildName(ctx, guildID)
	if err != nil || name == "" {
		return guildID
	}
	return name
}
