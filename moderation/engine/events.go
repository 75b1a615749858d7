package engine

import (
	"time"

	"github.com/wardenbot/warden/moderation/platform"
)

type EventKind string

const (
	KindGuildJoined       EventKind = "guild-joined"
	KindGuildMessage      EventKind = "guild-message"
	KindDirectMessage     EventKind = "direct-message"
	KindStartVerification EventKind = "start-verification"
	KindMemberUpdated     EventKind = "member-updated"
)

// Inbound platform event. Each concrete type maps to exactly one EventKind, which selects the handler in the engine's dispatch table.
type Event interface {
	Kind() EventKind
}

// The engine was added to a guild (or the guild became available after connecting).
type GuildJoinedEvent struct {
	GuildID   string
	GuildName string
}

func (e *GuildJoinedEvent) Kind() EventKind { return KindGuildJoined }

// A message was posted. Messages without a GuildID are direct messages to the engine.
type MessageEvent struct {
	GuildID   string
	ChannelID string
	MessageID string
	Author    platform.User
	Content   string
	Timestamp time.Time
}

func (e *MessageEvent) Kind() EventKind {
	if e.GuildID == "" {
		return KindDirectMessage
	}
	return KindGuildMessage
}

// A member invoked the verification start action (eg, clicked the "Verify" button on a prompt).
type StartVerificationEvent struct {
	Interaction platform.Interaction
	GuildID     string
	ChannelID   string
	User        platform.User
}

func (e *StartVerificationEvent) Kind() EventKind { return KindStartVerification }

// A member's profile changed. Before is nil when the previous state was not known.
type MemberUpdatedEvent struct {
	GuildID string
	Before  *platform.Member
	After   platform.Member
}

func (e *MemberUpdatedEvent) Kind() EventKind { return KindMemberUpdated }
