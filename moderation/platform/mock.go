package platform

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var errMockFailure = errors.New("mock platform failure")

type SentMessage struct {
	ChannelID string
	MessageID string
	Msg       OutgoingMessage
}

type DirectMessage struct {
	UserID string
	Text   string
}

type RoleGrant struct {
	GuildID string
	UserID  string
	RoleID  string
}

type InteractionEdit struct {
	InteractionID string
	Text          string
}

type mockGuild struct {
	name     string
	ownerID  string
	roles    []Role
	members  map[string]*Member
	standing Standing
}

// In-memory Client which records every action. Intended for tests, both in this repository and in packages building on the engine.
type MockClient struct {
	mu     sync.Mutex
	guilds map[string]*mockGuild
	users  map[string]User
	nextID int

	// When set, direct messages to these user IDs fail
	FailDirectMessage map[string]bool
	// When set, all channel sends fail
	FailSend bool
	// When set, role creation fails with a generic platform error
	FailCreateRole bool

	Sent          []SentMessage
	Deleted       []string
	DirectMsgs    []DirectMessage
	CreatedRoles  []Role
	Grants        []RoleGrant
	Acknowledged  []string
	Edits         []InteractionEdit
	StandingCalls int
	// Method names in call order, eg "AcknowledgeInteraction"
	Calls []string
}

func NewMockClient() *MockClient {
	return &MockClient{
		guilds:            make(map[string]*mockGuild),
		users:             make(map[string]User),
		FailDirectMessage: make(map[string]bool),
	}
}

// Registers a guild with the given owner. The engine's own standing defaults to being able to manage roles, with a high role position.
func (c *MockClient) AddGuild(guildID, name string, owner User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[owner.ID] = owner
	c.guilds[guildID] = &mockGuild{
		name:     name,
		ownerID:  owner.ID,
		members:  map[string]*Member{owner.ID: {GuildID: guildID, User: owner}},
		standing: Standing{CanManageRoles: true, HighestPosition: 10},
	}
}

func (c *MockClient) AddMember(guildID string, u User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[u.ID] = u
	if g, ok := c.guilds[guildID]; ok {
		g.members[u.ID] = &Member{GuildID: guildID, User: u}
	}
}

func (c *MockClient) AddRole(guildID string, r Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.guilds[guildID]; ok {
		g.roles = append(g.roles, r)
	}
}

// Removes a role, as if deleted by a guild administrator.
func (c *MockClient) RemoveRole(guildID, roleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.guilds[guildID]
	if !ok {
		return
	}
	out := g.roles[:0]
	for _, r := range g.roles {
		if r.ID != roleID {
			out = append(out, r)
		}
	}
	g.roles = out
}

func (c *MockClient) SetStanding(guildID string, st Standing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.guilds[guildID]; ok {
		g.standing = st
	}
}

// Returns the text of every direct message sent to the user, oldest first.
func (c *MockClient) DirectMessagesTo(userID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, dm := range c.DirectMsgs {
		if dm.UserID == userID {
			out = append(out, dm.Text)
		}
	}
	return out
}

// Returns the content of every message sent to the channel, oldest first.
func (c *MockClient) MessagesIn(channelID string) []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []SentMessage
	for _, m := range c.Sent {
		if m.ChannelID == channelID {
			out = append(out, m)
		}
	}
	return out
}

// Returns the IDs of every deleted message, oldest first.
func (c *MockClient) DeletedMessages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Deleted...)
}

func (c *MockClient) LastEdit() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Edits) == 0 {
		return ""
	}
	return c.Edits[len(c.Edits)-1].Text
}

func (c *MockClient) RoleByName(guildID, name string) *Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.guilds[guildID]
	if !ok {
		return nil
	}
	for _, r := range g.roles {
		if r.Name == name {
			return &r
		}
	}
	return nil
}

func (c *MockClient) record(method string) {
	c.Calls = append(c.Calls, method)
}

func (c *MockClient) newID(prefix string) string {
	c.nextID++
	return fmt.Sprintf("%s%d", prefix, c.nextID)
}

func (c *MockClient) SendMessage(ctx context.Context, channelID string, msg OutgoingMessage) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("SendMessage")
	if c.FailSend {
		return "", errMockFailure
	}
	id := c.newID("msg")
	c.Sent = append(c.Sent, SentMessage{ChannelID: channelID, MessageID: id, Msg: msg})
	return id, nil
}

func (c *MockClient) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("DeleteMessage")
	c.Deleted = append(c.Deleted, messageID)
	return nil
}

func (c *MockClient) SendDirectMessage(ctx context.Context, userID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("SendDirectMessage")
	if c.FailDirectMessage[userID] {
		return errMockFailure
	}
	c.DirectMsgs = append(c.DirectMsgs, DirectMessage{UserID: userID, Text: text})
	return nil
}

func (c *MockClient) guild(guildID string) (*mockGuild, error) {
	g, ok := c.guilds[guildID]
	if !ok {
		return nil, fmt.Errorf("guild %s: %w", guildID, ErrNotFound)
	}
	return g, nil
}

func (c *MockClient) GuildName(ctx context.Context, guildID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("GuildName")
	g, err := c.guild(guildID)
	if err != nil {
		return "", err
	}
	return g.name, nil
}

func (c *MockClient) GuildOwner(ctx context.Context, guildID string) (*User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("GuildOwner")
	g, err := c.guild(guildID)
	if err != nil {
		return nil, err
	}
	u := c.users[g.ownerID]
	return &u, nil
}

func (c *MockClient) Member(ctx context.Context, guildID, userID string) (*Member, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("Member")
	g, err := c.guild(guildID)
	if err != nil {
		return nil, err
	}
	m, ok := g.members[userID]
	if !ok {
		return nil, fmt.Errorf("member %s: %w", userID, ErrNotFound)
	}
	out := *m
	out.RoleIDs = append([]string(nil), m.RoleIDs...)
	return &out, nil
}

func (c *MockClient) GuildRoles(ctx context.Context, guildID string) ([]Role, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("GuildRoles")
	g, err := c.guild(guildID)
	if err != nil {
		return nil, err
	}
	return append([]Role(nil), g.roles...), nil
}

func (c *MockClient) CreateRole(ctx context.Context, guildID string, spec RoleSpec) (*Role, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("CreateRole")
	g, err := c.guild(guildID)
	if err != nil {
		return nil, err
	}
	if c.FailCreateRole {
		return nil, errMockFailure
	}
	// new roles land just above the default role, as on most platforms
	r := Role{ID: c.newID("role"), Name: spec.Name, Color: spec.Color, Position: 1}
	g.roles = append(g.roles, r)
	c.CreatedRoles = append(c.CreatedRoles, r)
	return &r, nil
}

func (c *MockClient) AddMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("AddMemberRole")
	g, err := c.guild(guildID)
	if err != nil {
		return err
	}
	m, ok := g.members[userID]
	if !ok {
		return fmt.Errorf("member %s: %w", userID, ErrNotFound)
	}
	if !m.HasRole(roleID) {
		m.RoleIDs = append(m.RoleIDs, roleID)
	}
	c.Grants = append(c.Grants, RoleGrant{GuildID: guildID, UserID: userID, RoleID: roleID})
	return nil
}

func (c *MockClient) SelfStanding(ctx context.Context, guildID string) (*Standing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("SelfStanding")
	c.StandingCalls++
	g, err := c.guild(guildID)
	if err != nil {
		return nil, err
	}
	st := g.standing
	return &st, nil
}

func (c *MockClient) AcknowledgeInteraction(ctx context.Context, ix Interaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("AcknowledgeInteraction")
	c.Acknowledged = append(c.Acknowledged, ix.ID)
	return nil
}

func (c *MockClient) EditInteractionResponse(ctx context.Context, ix Interaction, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("EditInteractionResponse")
	c.Edits = append(c.Edits, InteractionEdit{InteractionID: ix.ID, Text: text})
	return nil
}

var _ Client = (*MockClient)(nil)
