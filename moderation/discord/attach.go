package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wardenbot/warden/moderation/engine"
	"github.com/wardenbot/warden/moderation/platform"

	"github.com/bwmarrin/discordgo"
)

// Converts gateway events into engine events and processes them.
//
// discordgo runs each handler in its own goroutine, so a slow event for one user does not hold up others.
type Dispatcher struct {
	Engine *engine.Engine
	Logger *slog.Logger
	// Upper bound on the time spent handling a single event
	EventTimeout time.Duration
}

// Registers gateway handlers on the session. The returned function removes them.
func Attach(s *discordgo.Session, eng *engine.Engine, logger *slog.Logger) func() {
	d := &Dispatcher{
		Engine:       eng,
		Logger:       logger,
		EventTimeout: 30 * time.Second,
	}
	removers := []func(){
		s.AddHandler(d.onReady),
		s.AddHandler(d.onMessageCreate),
		s.AddHandler(d.onInteractionCreate),
		s.AddHandler(d.onGuildCreate),
		s.AddHandler(d.onGuildMemberUpdate),
	}
	return func() {
		for _, rm := range removers {
			rm()
		}
	}
}

func (d *Dispatcher) process(evt engine.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.EventTimeout)
	defer cancel()
	if err := d.Engine.ProcessEvent(ctx, evt); err != nil {
		d.Logger.Error("failed to process event", "kind", evt.Kind(), "err", err)
	}
}

func (d *Dispatcher) onReady(s *discordgo.Session, r *discordgo.Ready) {
	d.Logger.Info("connected to discord gateway", "user", userTag(r.User), "guilds", len(r.Guilds))
}

func (d *Dispatcher) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || (s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}
	d.process(messageEvent(m))
}

func (d *Dispatcher) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	evt, ok := startEvent(i, d.Engine.Config.StartButtonID)
	if !ok {
		return
	}
	d.process(evt)
}

// Fired for each guild on connect, and when the bot is added to a new guild.
func (d *Dispatcher) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Unavailable {
		return
	}
	d.process(&engine.GuildJoinedEvent{GuildID: g.ID, GuildName: g.Name})
}

func (d *Dispatcher) onGuildMemberUpdate(s *discordgo.Session, u *discordgo.GuildMemberUpdate) {
	if u.Member == nil || u.Member.User == nil {
		return
	}
	d.process(memberUpdatedEvent(u))
}

func messageEvent(m *discordgo.MessageCreate) *engine.MessageEvent {
	return &engine.MessageEvent{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		Author:    convertUser(m.Author),
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
}

// Returns false for interactions other than a click on the verification start button.
func startEvent(i *discordgo.InteractionCreate, buttonID string) (*engine.StartVerificationEvent, bool) {
	if i.Interaction == nil || i.Type != discordgo.InteractionMessageComponent {
		return nil, false
	}
	if i.MessageComponentData().CustomID != buttonID {
		return nil, false
	}
	var u *discordgo.User
	switch {
	case i.Member != nil && i.Member.User != nil:
		u = i.Member.User
	case i.User != nil:
		u = i.User
	default:
		return nil, false
	}
	return &engine.StartVerificationEvent{
		Interaction: platform.Interaction{ID: i.ID, AppID: i.AppID, Token: i.Token},
		GuildID:     i.GuildID,
		ChannelID:   i.ChannelID,
		User:        convertUser(u),
	}, true
}

func memberUpdatedEvent(u *discordgo.GuildMemberUpdate) *engine.MemberUpdatedEvent {
	evt := &engine.MemberUpdatedEvent{
		GuildID: u.GuildID,
		After:   convertMember(u.GuildID, u.Member),
	}
	if u.BeforeUpdate != nil && u.BeforeUpdate.User != nil {
		before := convertMember(u.GuildID, u.BeforeUpdate)
		evt.Before = &before
	}
	return evt
}

// Routes discordgo's internal logging through slog.
func SetLogger(logger *slog.Logger) {
	discordgo.Logger = func(msgL, caller int, format string, a ...interface{}) {
		msg := fmt.Sprintf(format, a...)
		switch msgL {
		case discordgo.LogError:
			logger.Error(msg, "source", "discordgo")
		case discordgo.LogWarning:
			logger.Warn(msg, "source", "discordgo")
		case discordgo.LogInformational:
			logger.Info(msg, "source", "discordgo")
		default:
			logger.Debug(msg, "source", "discordgo")
		}
	}
}
