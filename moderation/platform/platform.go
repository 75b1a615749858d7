package platform

import (
	"context"
	"errors"
)

// Returned by Client implementations when a referenced guild, member, role or channel does not exist.
var ErrNotFound = errors.New("platform object not found")

type User struct {
	ID string
	// Human-readable handle, eg "name" or "name#1234"
	Tag string
	Bot bool
}

type Member struct {
	GuildID  string
	User     User
	Nickname string
	RoleIDs  []string
}

// Returns true if the member currently holds the given role.
func (m *Member) HasRole(roleID string) bool {
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

type Role struct {
	ID       string
	Name     string
	Color    int
	Position int
}

// Display properties for a role which may need to be created. Roles created by the engine never carry permissions.
type RoleSpec struct {
	Name  string
	Color int
}

// The engine's own privileges within a single guild.
type Standing struct {
	CanManageRoles bool
	// Position of the highest role held by the engine's own member. Zero means only the default role.
	HighestPosition int
}

// Handle for replying to an interactive component invocation (eg, a button click).
type Interaction struct {
	ID    string
	AppID string
	Token string
}

type Button struct {
	Label    string
	CustomID string
}

type OutgoingMessage struct {
	Content string
	// Message ID to reply to, if any
	ReplyTo string
	Buttons []Button
}

// Capability surface the engine needs from the chat platform.
//
// Implementations must be safe for concurrent use.
type Client interface {
	SendMessage(ctx context.Context, channelID string, msg OutgoingMessage) (string, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	SendDirectMessage(ctx context.Context, userID, text string) error

	GuildName(ctx context.Context, guildID string) (string, error)
	GuildOwner(ctx context.Context, guildID string) (*User, error)
	Member(ctx context.Context, guildID, userID string) (*Member, error)

	GuildRoles(ctx context.Context, guildID string) ([]Role, error)
	CreateRole(ctx context.Context, guildID string, spec RoleSpec) (*Role, error)
	AddMemberRole(ctx context.Context, guildID, userID, roleID string) error
	SelfStanding(ctx context.Context, guildID string) (*Standing, error)

	// Must be called within the platform's acknowledgment deadline, before any other I/O for the interaction.
	AcknowledgeInteraction(ctx context.Context, ix Interaction) error
	EditInteractionResponse(ctx context.Context, ix Interaction, text string) error
}

// Inline mention markup for the user, as rendered by the platform client.
func (u User) Mention() string {
	return "<@" + u.ID + ">"
}
