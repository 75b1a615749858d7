// Discord implementation of the platform capability surface, backed by discordgo.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/wardenbot/warden/moderation/platform"

	"github.com/bwmarrin/discordgo"
)

// Gateway intents needed to receive every event the engine handles. MessageContent and GuildMembers are privileged and must be enabled for the application.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsDirectMessages

type Client struct {
	Session *discordgo.Session
}

func NewClient(s *discordgo.Session) *Client {
	return &Client{Session: s}
}

// Creates a bot session with the intents set. The session is not opened.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	s.Identify.Intents = Intents
	return s, nil
}

// maps 404 responses onto platform.ErrNotFound
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w: %w", op, platform.ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (c *Client) selfID() string {
	if c.Session.State != nil && c.Session.State.User != nil {
		return c.Session.State.User.ID
	}
	return ""
}

func (c *Client) SendMessage(ctx context.Context, channelID string, msg platform.OutgoingMessage) (string, error) {
	out := &discordgo.MessageSend{Content: msg.Content}
	if msg.ReplyTo != "" {
		out.Reference = &discordgo.MessageReference{MessageID: msg.ReplyTo, ChannelID: channelID}
	}
	if len(msg.Buttons) > 0 {
		row := discordgo.ActionsRow{}
		for _, b := range msg.Buttons {
			row.Components = append(row.Components, discordgo.Button{
				Label:    b.Label,
				Style:    discordgo.PrimaryButton,
				CustomID: b.CustomID,
			})
		}
		out.Components = []discordgo.MessageComponent{row}
	}
	m, err := c.Session.ChannelMessageSendComplex(channelID, out, discordgo.WithContext(ctx))
	if err != nil {
		return "", wrapErr("sending message", err)
	}
	return m.ID, nil
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return wrapErr("deleting message", c.Session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)))
}

func (c *Client) SendDirectMessage(ctx context.Context, userID, text string) error {
	ch, err := c.Session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return wrapErr("opening direct message channel", err)
	}
	_, err = c.Session.ChannelMessageSend(ch.ID, text, discordgo.WithContext(ctx))
	return wrapErr("sending direct message", err)
}

// prefers the gateway state cache, falling back to REST
func (c *Client) guild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	if c.Session.State != nil {
		if g, err := c.Session.State.Guild(guildID); err == nil {
			return g, nil
		}
	}
	g, err := c.Session.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapErr("fetching guild", err)
	}
	return g, nil
}

func (c *Client) GuildName(ctx context.Context, guildID string) (string, error) {
	g, err := c.guild(ctx, guildID)
	if err != nil {
		return "", err
	}
	return g.Name, nil
}

func (c *Client) GuildOwner(ctx context.Context, guildID string) (*platform.User, error) {
	g, err := c.guild(ctx, guildID)
	if err != nil {
		return nil, err
	}
	u, err := c.Session.User(g.OwnerID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapErr("fetching guild owner", err)
	}
	out := convertUser(u)
	return &out, nil
}

func (c *Client) Member(ctx context.Context, guildID, userID string) (*platform.Member, error) {
	m, err := c.Session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapErr("fetching member", err)
	}
	out := convertMember(guildID, m)
	return &out, nil
}

func (c *Client) GuildRoles(ctx context.Context, guildID string) ([]platform.Role, error) {
	all, err := c.Session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapErr("listing roles", err)
	}
	out := make([]platform.Role, 0, len(all))
	for _, r := range all {
		out = append(out, convertRole(r))
	}
	return out, nil
}

func (c *Client) CreateRole(ctx context.Context, guildID string, spec platform.RoleSpec) (*platform.Role, error) {
	color := spec.Color
	var perms int64
	r, err := c.Session.GuildRoleCreate(guildID, &discordgo.RoleParams{
		Name:        spec.Name,
		Color:       &color,
		Permissions: &perms,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapErr("creating role", err)
	}
	out := convertRole(r)
	return &out, nil
}

func (c *Client) AddMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	return wrapErr("adding member role", c.Session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (c *Client) SelfStanding(ctx context.Context, guildID string) (*platform.Standing, error) {
	self := c.selfID()
	if self == "" {
		return nil, errors.New("session has no ready state")
	}
	g, err := c.guild(ctx, guildID)
	if err != nil {
		return nil, err
	}
	m, err := c.Session.GuildMember(guildID, self, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapErr("fetching own member", err)
	}
	all, err := c.Session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapErr("listing roles", err)
	}
	st := computeStanding(guildID, g.OwnerID == self, m.Roles, all)
	return &st, nil
}

func interaction(ix platform.Interaction) *discordgo.Interaction {
	return &discordgo.Interaction{ID: ix.ID, AppID: ix.AppID, Token: ix.Token}
}

// Defers an ephemeral reply, which the later edit fills in.
func (c *Client) AcknowledgeInteraction(ctx context.Context, ix platform.Interaction) error {
	err := c.Session.InteractionRespond(interaction(ix), &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}, discordgo.WithContext(ctx))
	return wrapErr("acknowledging interaction", err)
}

func (c *Client) EditInteractionResponse(ctx context.Context, ix platform.Interaction, text string) error {
	_, err := c.Session.InteractionResponseEdit(interaction(ix), &discordgo.WebhookEdit{Content: &text}, discordgo.WithContext(ctx))
	return wrapErr("editing interaction response", err)
}

var _ platform.Client = (*Client)(nil)
