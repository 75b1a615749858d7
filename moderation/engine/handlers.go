package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wardenbot/warden/moderation/challenge"
	"github.com/wardenbot/warden/moderation/platform"
	"github.com/wardenbot/warden/moderation/ratewindow"
	"github.com/wardenbot/warden/moderation/roles"
)

const noticeSendFailed = "send-failed"

// Warns the owner up front if the engine will not be able to manage roles in the new guild.
func (eng *Engine) handleGuildJoined(ctx context.Context, evt *GuildJoinedEvent) error {
	logger := eng.Logger.With("guild", evt.GuildID)
	logger.Info("joined guild", "name", evt.GuildName)

	_, err := eng.Roles.CheckCapability(ctx, evt.GuildID)
	if errors.Is(err, roles.ErrInsufficientPrivilege) {
		eng.modLog(ctx, fmt.Sprintf("missing Manage Roles in guild %s (%s)", evt.GuildName, evt.GuildID))
		return nil
	}
	return err
}

func (eng *Engine) handleGuildMessage(ctx context.Context, evt *MessageEvent) error {
	if evt.Author.Bot {
		return nil
	}
	logger := eng.Logger.With("guild", evt.GuildID, "user", evt.Author.ID, "channel", evt.ChannelID)

	now := evt.Timestamp
	if now.IsZero() {
		now = eng.Now()
	}
	key := ratewindow.MemberKey(evt.GuildID, evt.Author.ID)
	tripped, err := eng.Rates.Record(ctx, key, now)
	if err != nil {
		logger.Error("failed to record message in rate window", "err", err)
	} else if tripped {
		// the tracker already emptied the window, so later messages in this burst do not trip again
		eng.handleBurst(ctx, evt)
	}

	verified, err := eng.Allowed.Contains(ctx, evt.Author.ID)
	if err != nil {
		return fmt.Errorf("checking allow-list: %w", err)
	}
	if !verified {
		eng.sendPrompt(ctx, evt)
		return nil
	}
	return eng.runCommand(ctx, evt)
}

func (eng *Engine) handleBurst(ctx context.Context, evt *MessageEvent) {
	burstTripCount.Inc()
	spec := eng.Config.BurstRole
	res, err := eng.provisionRole(ctx, evt.GuildID, evt.Author.ID, spec)
	if err != nil {
		eng.Logger.Warn("could not apply burst role", "guild", evt.GuildID, "user", evt.Author.ID, "err", err)
	} else {
		eng.modLog(ctx, fmt.Sprintf("burst role %q %s for %s (%s) in guild %s", spec.Name, res, evt.Author.Tag, evt.Author.ID, evt.GuildID))
	}
	eng.reply(ctx, evt, burstReply(spec.Name, res, err))
}

func promptKey(guildID, userID string) string {
	return "prompt/" + guildID + "/" + userID
}

// Posts a verification prompt with a start button, unless one is already outstanding for the member. The prompt is removed after PromptTTL.
func (eng *Engine) sendPrompt(ctx context.Context, evt *MessageEvent) {
	logger := eng.Logger.With("guild", evt.GuildID, "user", evt.Author.ID, "channel", evt.ChannelID)
	key := promptKey(evt.GuildID, evt.Author.ID)
	if !eng.tasks.Reserve(key) {
		logger.Debug("verification prompt already outstanding")
		return
	}

	msgID, err := eng.Client.SendMessage(ctx, evt.ChannelID, platform.OutgoingMessage{
		Content: fmt.Sprintf(PromptText, evt.Author.Mention()),
		ReplyTo: evt.MessageID,
		Buttons: []platform.Button{{Label: PromptButtonText, CustomID: eng.Config.StartButtonID}},
	})
	if err != nil {
		eng.tasks.Release(key)
		promptSentCount.WithLabelValues("failed").Inc()
		logger.Error("failed to post verification prompt", "err", err)
		eng.Roles.Owners.Notify(ctx, evt.GuildID, noticeSendFailed,
			fmt.Sprintf(OwnerSendFailedNotice, evt.Author.Tag, "<#"+evt.ChannelID+">", err))
		return
	}
	promptSentCount.WithLabelValues("sent").Inc()

	if eng.Config.PromptTTL <= 0 {
		eng.tasks.Release(key)
		return
	}
	channelID := evt.ChannelID
	eng.tasks.Schedule(key, eng.Config.PromptTTL, func(ctx context.Context) {
		if err := eng.Client.DeleteMessage(ctx, channelID, msgID); err != nil {
			logger.Warn("failed to delete verification prompt", "message", msgID, "err", err)
		}
	})
}

func (eng *Engine) runCommand(ctx context.Context, evt *MessageEvent) error {
	switch strings.TrimSpace(evt.Content) {
	case "!ping":
		eng.reply(ctx, evt, ReplyPong)
	case "!owner":
		owner, err := eng.Client.GuildOwner(ctx, evt.GuildID)
		if err != nil {
			eng.Logger.Warn("failed to fetch guild owner", "guild", evt.GuildID, "err", err)
			eng.reply(ctx, evt, ReplyOwnerFailed)
			return nil
		}
		eng.reply(ctx, evt, fmt.Sprintf(ReplyOwner, owner.Tag, owner.ID))
	}
	return nil
}

// best-effort reply in the channel the message came from
func (eng *Engine) reply(ctx context.Context, evt *MessageEvent, text string) {
	_, err := eng.Client.SendMessage(ctx, evt.ChannelID, platform.OutgoingMessage{Content: text, ReplyTo: evt.MessageID})
	if err != nil {
		eng.Logger.Error("failed to send reply", "guild", evt.GuildID, "user", evt.Author.ID, "channel", evt.ChannelID, "err", err)
	}
}

// best-effort direct message to a user
func (eng *Engine) dm(ctx context.Context, userID, text string) {
	if err := eng.Client.SendDirectMessage(ctx, userID, text); err != nil {
		eng.Logger.Error("failed to send direct message", "user", userID, "err", err)
	}
}

// Ensures the role exists in the guild, then grants it to the user.
func (eng *Engine) provisionRole(ctx context.Context, guildID, userID string, spec platform.RoleSpec) (res roles.AssignResult, err error) {
	defer func() {
		roleAssignCount.WithLabelValues(spec.Name, roleOutcome(res, err)).Inc()
	}()

	role, err := eng.Roles.EnsureRole(ctx, guildID, spec)
	if err != nil {
		return 0, err
	}
	member, err := eng.Client.Member(ctx, guildID, userID)
	if err != nil {
		return 0, fmt.Errorf("fetching member: %w", err)
	}
	return eng.Roles.AssignRole(ctx, guildID, member, role)
}

// Acknowledges the interaction first, then issues a challenge and delivers the question by direct message.
func (eng *Engine) handleStartVerification(ctx context.Context, evt *StartVerificationEvent) error {
	logger := eng.Logger.With("guild", evt.GuildID, "user", evt.User.ID)

	// the platform reports the action as failed unless this happens before any other I/O
	if err := eng.Client.AcknowledgeInteraction(ctx, evt.Interaction); err != nil {
		verificationStartCount.WithLabelValues("ack-failed").Inc()
		return fmt.Errorf("acknowledging interaction: %w", err)
	}
	edit := func(text string) {
		if err := eng.Client.EditInteractionResponse(ctx, evt.Interaction, text); err != nil {
			logger.Error("failed to edit interaction response", "err", err)
		}
	}

	if evt.GuildID == "" {
		verificationStartCount.WithLabelValues("no-guild").Inc()
		edit(ReplyGuildOnly)
		return nil
	}

	c, err := eng.Challenges.Start(ctx, evt.User.ID, evt.GuildID)
	switch {
	case errors.Is(err, challenge.ErrAlreadyVerified):
		verificationStartCount.WithLabelValues("already-verified").Inc()
		edit(ReplyAlreadyVerified)
		return nil
	case errors.Is(err, challenge.ErrAlreadyPending):
		verificationStartCount.WithLabelValues("already-pending").Inc()
		edit(ReplyAlreadyPending)
		return nil
	case err != nil:
		verificationStartCount.WithLabelValues("error").Inc()
		logger.Error("failed to start challenge", "err", err)
		edit(ReplyStartFailed)
		return nil
	}

	minutes := int(eng.Challenges.TTL.Minutes())
	if err := eng.Client.SendDirectMessage(ctx, evt.User.ID, fmt.Sprintf(QuestionText, c.Question, minutes)); err != nil {
		verificationStartCount.WithLabelValues("dm-failed").Inc()
		logger.Warn("could not deliver challenge question", "err", err)
		eng.Challenges.Cancel(evt.User.ID)
		edit(ReplyDMFailed)
		return nil
	}
	verificationStartCount.WithLabelValues("started").Inc()
	logger.Info("issued verification challenge")
	edit(ReplyCheckDMs)
	return nil
}

// Direct messages are challenge answers if, and only if, the author has an outstanding challenge.
func (eng *Engine) handleDirectMessage(ctx context.Context, evt *MessageEvent) error {
	if evt.Author.Bot {
		return nil
	}
	verdict, c := eng.Challenges.Submit(evt.Author.ID, evt.Content)
	if verdict == challenge.NoChallenge {
		return nil
	}
	verificationVerdictCount.WithLabelValues(verdict.String()).Inc()
	logger := eng.Logger.With("guild", c.GuildID, "user", evt.Author.ID, "verdict", verdict.String())

	switch verdict {
	case challenge.Incorrect:
		eng.dm(ctx, evt.Author.ID, ReplyIncorrect)
	case challenge.Expired:
		eng.dm(ctx, evt.Author.ID, ReplyExpired)
	case challenge.Correct:
		// recorded before the role round-trips, so a concurrent start action sees the user as verified
		// (write failures keep the in-memory entry, so the user stays verified until restart)
		if err := eng.Allowed.Add(ctx, evt.Author.ID); err != nil {
			logger.Error("failed to persist verified user", "err", err)
		}
		res, err := eng.provisionRole(ctx, c.GuildID, evt.Author.ID, eng.Config.VerifiedRole)
		if err != nil {
			logger.Warn("could not apply verified role", "err", err)
		}
		logger.Info("user verified", "role", roleOutcome(res, err))
		eng.dm(ctx, evt.Author.ID, verifiedReply(res, err))
		eng.modLog(ctx, fmt.Sprintf("verified %s (%s) in guild %s", evt.Author.Tag, evt.Author.ID, c.GuildID))
	}
	return nil
}

func (eng *Engine) handleMemberUpdated(ctx context.Context, evt *MemberUpdatedEvent) error {
	logger := eng.Logger.With("guild", evt.GuildID, "user", evt.After.User.ID)
	if evt.Before == nil {
		logger.Debug("member updated", "tag", evt.After.User.Tag, "nickname", evt.After.Nickname)
		return nil
	}
	if evt.Before.User.Tag != evt.After.User.Tag {
		logger.Info("member changed username", "before", evt.Before.User.Tag, "after", evt.After.User.Tag)
	}
	if evt.Before.Nickname != evt.After.Nickname {
		logger.Info("member changed nickname", "before", evt.Before.Nickname, "after", evt.After.Nickname)
	}
	return nil
}
