package discord

import (
	"github.com/wardenbot/warden/moderation/platform"

	"github.com/bwmarrin/discordgo"
)

// Legacy "name#1234" form when the account still has a discriminator, otherwise just the username.
func userTag(u *discordgo.User) string {
	if u.Discriminator == "" || u.Discriminator == "0" {
		return u.Username
	}
	return u.Username + "#" + u.Discriminator
}

func convertUser(u *discordgo.User) platform.User {
	if u == nil {
		return platform.User{}
	}
	return platform.User{ID: u.ID, Tag: userTag(u), Bot: u.Bot}
}

func convertMember(guildID string, m *discordgo.Member) platform.Member {
	return platform.Member{
		GuildID:  guildID,
		User:     convertUser(m.User),
		Nickname: m.Nick,
		RoleIDs:  append([]string(nil), m.Roles...),
	}
}

func convertRole(r *discordgo.Role) platform.Role {
	return platform.Role{ID: r.ID, Name: r.Name, Color: r.Color, Position: r.Position}
}

// Derives role-management capability and highest role position from the roles held by the engine's member.
//
// The @everyone role shares the guild's ID and is always held. Guild owners may manage every role, so they are placed above all of them.
func computeStanding(guildID string, isOwner bool, held []string, all []*discordgo.Role) platform.Standing {
	byID := make(map[string]*discordgo.Role, len(all))
	top := 0
	for _, r := range all {
		byID[r.ID] = r
		if r.Position > top {
			top = r.Position
		}
	}
	if isOwner {
		return platform.Standing{CanManageRoles: true, HighestPosition: top + 1}
	}

	var st platform.Standing
	var perms int64
	if everyone, ok := byID[guildID]; ok {
		perms |= everyone.Permissions
	}
	for _, id := range held {
		r, ok := byID[id]
		if !ok {
			continue
		}
		perms |= r.Permissions
		if r.Position > st.HighestPosition {
			st.HighestPosition = r.Position
		}
	}
	st.CanManageRoles = perms&discordgo.PermissionAdministrator != 0 || perms&discordgo.PermissionManageRoles != 0
	return st
}
