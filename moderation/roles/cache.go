package roles

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Caches resolved role IDs by guild and role name. Entries are only hints: callers always re-validate against the guild's current roles, since roles can be deleted or renamed externally.
type RoleCache struct {
	Data *expirable.LRU[string, string]
}

func NewRoleCache(capacity int, ttl time.Duration) RoleCache {
	return RoleCache{
		Data: expirable.NewLRU[string, string](capacity, nil, ttl),
	}
}

func roleCacheKey(guildID, name string) string {
	return guildID + "/" + name
}

func (c RoleCache) Get(guildID, name string) (string, bool) {
	return c.Data.Get(roleCacheKey(guildID, name))
}

func (c RoleCache) Set(guildID, name, roleID string) {
	c.Data.Add(roleCacheKey(guildID, name), roleID)
}

func (c RoleCache) Purge(guildID, name string) {
	c.Data.Remove(roleCacheKey(guildID, name))
}
