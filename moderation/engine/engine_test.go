package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wardenbot/warden/moderation/allowlist"
	"github.com/wardenbot/warden/moderation/platform"
	"github.com/wardenbot/warden/moderation/ratewindow"
	"github.com/wardenbot/warden/moderation/roles"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	newbie  = platform.User{ID: "user1", Tag: "newbie"}
	regular = platform.User{ID: "user2", Tag: "regular"}
)

func guildMsg(clock *TestClock, author platform.User, id, content string) *MessageEvent {
	return &MessageEvent{
		GuildID:   "g1",
		ChannelID: "c1",
		MessageID: id,
		Author:    author,
		Content:   content,
		Timestamp: clock.Now(),
	}
}

func directMsg(author platform.User, content string) *MessageEvent {
	return &MessageEvent{
		ChannelID: "dm-" + author.ID,
		Author:    author,
		Content:   content,
	}
}

func clickStart(u platform.User, ixID string) *StartVerificationEvent {
	return &StartVerificationEvent{
		Interaction: platform.Interaction{ID: ixID, AppID: "app1", Token: "tok-" + ixID},
		GuildID:     "g1",
		ChannelID:   "c1",
		User:        u,
	}
}

// messages in the channel which carry a start button
func prompts(mc *platform.MockClient, channelID string) []platform.SentMessage {
	var out []platform.SentMessage
	for _, m := range mc.MessagesIn(channelID) {
		if len(m.Msg.Buttons) > 0 {
			out = append(out, m)
		}
	}
	return out
}

func lastDM(mc *platform.MockClient, userID string) string {
	dms := mc.DirectMessagesTo(userID)
	if len(dms) == 0 {
		return ""
	}
	return dms[len(dms)-1]
}

type recordingNotifier struct {
	mu    sync.Mutex
	lines []string
}

func (n *recordingNotifier) SendModLog(ctx context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lines = append(n.lines, text)
	return nil
}

func TestScenarioVerification(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	eng, mc, clock := EngineTestFixture()
	defer eng.Close()
	eng.Challenges.Pick = func(n int) int { return 1 }
	modlog := &recordingNotifier{}
	eng.ModLog = modlog

	// first message from an unverified member gets a prompt with a start button
	require.NoError(eng.ProcessEvent(ctx, guildMsg(clock, newbie, "m1", "hello")))
	ps := prompts(mc, "c1")
	require.Len(ps, 1)
	assert.Equal(fmt.Sprintf(PromptText, "<@user1>"), ps[0].Msg.Content)
	assert.Equal("m1", ps[0].Msg.ReplyTo)
	assert.Equal(PromptButtonText, ps[0].Msg.Buttons[0].Label)
	assert.Equal(eng.Config.StartButtonID, ps[0].Msg.Buttons[0].CustomID)
	assert.Empty(mc.DirectMessagesTo("user1"))

	// clicking start acknowledges before any other platform call
	before := len(mc.Calls)
	require.NoError(eng.ProcessEvent(ctx, clickStart(newbie, "ix1")))
	assert.Equal("AcknowledgeInteraction", mc.Calls[before])
	assert.Equal([]string{"ix1"}, mc.Acknowledged)
	assert.Equal(ReplyCheckDMs, mc.LastEdit())
	dms := mc.DirectMessagesTo("user1")
	require.Len(dms, 1)
	assert.Equal(fmt.Sprintf(QuestionText, "What color is a clear daytime sky?", 5), dms[0])

	// answer in a different case, with padding, inside the window
	clock.Advance(2 * time.Minute)
	require.NoError(eng.ProcessEvent(ctx, directMsg(newbie, "  bLuE \n")))

	ok, err := eng.Allowed.Contains(ctx, "user1")
	require.NoError(err)
	assert.True(ok)
	role := mc.RoleByName("g1", "Verified")
	require.NotNil(role)
	assert.Equal(0x2ecc71, role.Color)
	require.Len(mc.Grants, 1)
	assert.Equal(platform.RoleGrant{GuildID: "g1", UserID: "user1", RoleID: role.ID}, mc.Grants[0])
	assert.Equal(ReplyVerified, lastDM(mc, "user1"))
	assert.False(eng.Challenges.Pending("user1"))
	require.Len(modlog.lines, 1)
	assert.Contains(modlog.lines[0], "verified newbie (user1)")

	// verified members are no longer prompted
	clock.Advance(2 * time.Minute)
	require.NoError(eng.ProcessEvent(ctx, guildMsg(clock, newbie, "m2", "hello again")))
	assert.Len(prompts(mc, "c1"), 1)
}

func TestScenarioBurstRole(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	eng, mc, clock := EngineTestFixture()
	defer eng.Close()

	require.NoError(eng.ProcessEvent(ctx, guildMsg(clock, regular, "m1", "one")))
	assert.Empty(mc.MessagesIn("c1"))
	assert.Nil(mc.RoleByName("g1", "Stunnerr"))

	clock.Advance(10 * time.Second)
	require.NoError(eng.ProcessEvent(ctx, guildMsg(clock, regular, "m2", "two")))
	role := mc.RoleByName("g1", "Stunnerr")
	require.NotNil(role)
	assert.Equal(0xe74c3c, role.Color)
	require.Len(mc.Grants, 1)
	assert.Equal("user2", mc.Grants[0].UserID)
	msgs := mc.MessagesIn("c1")
	require.Len(msgs, 1)
	assert.Equal(fmt.Sprintf(ReplyBurstAssigned, "Stunnerr"), msgs[0].Msg.Content)
	assert.Equal("m2", msgs[0].Msg.ReplyTo)

	// window was cleared: a third message within the minute does not re-trigger
	clock.Advance(10 * time.Second)
	require.NoError(eng.ProcessEvent(ctx, guildMsg(clock, regular, "m3", "three")))
	assert.Len(mc.Grants, 1)
	assert.Len(mc.CreatedRoles, 1)
	assert.Len(mc.MessagesIn("c1"), 1)

	// a fourth one does, and the existing role is reused
	clock.Advance(10 * time.Second)
	require.NoError(eng.ProcessEvent(ctx, guildMsg(clock, regular, "m4", "four")))
	assert.Len(mc.CreatedRoles, 1)
	msgs = mc.MessagesIn("c1")
	require.Len(msgs, 2)
	assert.Equal(fmt.Sprintf(ReplyBurstAlreadyAssigned, "Stunnerr"), msgs[1].Msg.Content)
}

func TestScenarioMissingCapability(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	eng, mc, clock := EngineTestFixture()
	defer eng.Close()
	mc.SetStanding("g1", platform.Standing{CanManageRoles: false, HighestPosition: 10})

	require.NoError(eng.ProcessEvent(ctx, guildMsg(clock, regular, "m1", "one")))
	clock.Advance(5 * time.Second)
	require.NoError(eng.ProcessEvent(ctx, guildMsg(clock, regular, "m2", "two")))

	assert.Equal([]string{roles.MissingCapabilityNotice("Test Guild")}, mc.DirectMessagesTo("owner1"))
	msgs := mc.MessagesIn("c1")
	require.Len(msgs, 1)
	assert.Equal(fmt.Sprintf(ReplyBurstNoPrivilege, "Stunnerr"), msgs[0].Msg.Content)
	assert.Empty(mc.CreatedRoles)
	assert.Empty(mc.Grants)

	// a second trip inside the cooldown does not DM the owner again
	clock.Advance(5 * time.Second)
	require.NoError(eng.ProcessEvent(ctx, guildMsg(clock, regular, "m3", "three")))
	clock.Advance(5 * time.Second)
	require.NoError(eng.ProcessEvent(ctx, guildMsg(clock, regular, "m4", "four")))
	assert.Len(mc.DirectMessagesTo("owner1"), 1)
	assert.Len(mc.MessagesIn("c1"), 2)
}

func TestGuildJoined(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, mc, _ := EngineTestFixture()
	defer eng.Close()

	assert.NoError(eng.ProcessEvent(ctx, &GuildJoinedEvent{GuildID: "g1", GuildName: "Test Guild"}))
	assert.Empty(mc.DirectMessagesTo("owner1"))

	modlog := &recordingNotifier{}
	eng.ModLog = modlog
	mc.SetStanding("g1", platform.Standing{CanManageRoles: false, HighestPosition: 3})
	assert.NoError(eng.ProcessEvent(ctx, &GuildJoinedEvent{GuildID: "g1", GuildName: "Test Guild"}))
	assert.Equal([]string{roles.MissingCapabilityNotice("Test Guild")}, mc.DirectMessagesTo("owner1"))
	assert.Len(modlog.lines, 1)
	assert.Empty(mc.CreatedRoles)
}

func TestPromptOncePerMember(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	eng, mc, clock := EngineTestFixture()
	defer eng.Close()
	eng.Config.PromptTTL = 100 * time.Millisecond

	require.NoError(eng.ProcessEvent(ctx, guildMsg(clock, newbie, "m1", "hello")))
	clock.Advance(2 * time.Minute)
	require.NoError(eng.ProcessEvent(ctx, guildMsg(clock, newbie, "m2", "anyone?")))
	ps := prompts(mc, "c1")
	require.Len(ps, 1)

	// prompt is removed after the TTL, and the member can be prompted again
	assert.Eventually(func() bool {
		deleted := mc.DeletedMessages()
		return len(deleted) == 1 && deleted[0] == ps[0].MessageID
	}, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(func() bool { return eng.tasks.Len() == 0 }, time.Second, 5*time.Millisecond)

	clock.Advance(2 * time.Minute)
	require.NoError(eng.ProcessEvent(ctx, guildMsg(clock, newbie, "m3", "still here")))
	assert.Len(prompts(mc, "c1"), 2)
}

func TestCloseCancelsPromptDeletion(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, mc, clock := EngineTestFixture()
	eng.Config.PromptTTL = time.Hour

	assert.NoError(eng.ProcessEvent(ctx, guildMsg(clock, newbie, "m1", "hello")))
	assert.Equal(1, eng.tasks.Len())
	eng.Close()
	assert.Equal(0, eng.tasks.Len())
	assert.Empty(mc.DeletedMessages())
}

func TestPromptSendFailure(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	eng, mc, clock := EngineTestFixture()
	defer eng.Close()

	mc.FailSend = true
	require.NoError(eng.ProcessEvent(ctx, guildMsg(clock, newbie, "m1", "hello")))
	owner := mc.DirectMessagesTo("owner1")
	require.Len(owner, 1)
	assert.True(strings.HasPrefix(owner[0], "I was unable to post a verification prompt for newbie in <#c1>:"))

	// reservation was released, so the next message prompts
	mc.FailSend = false
	clock.Advance(2 * time.Minute)
	require.NoError(eng.ProcessEvent(ctx, guildMsg(clock, newbie, "m2", "hello?")))
	assert.Len(prompts(mc, "c1"), 1)
}

func TestStartVerificationRejections(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, mc, _ := EngineTestFixture()
	defer eng.Close()

	assert.NoError(eng.ProcessEvent(ctx, clickStart(regular, "ix1")))
	assert.Equal(ReplyAlreadyVerified, mc.LastEdit())
	assert.Empty(mc.DirectMessagesTo("user2"))

	assert.NoError(eng.ProcessEvent(ctx, clickStart(newbie, "ix2")))
	assert.Equal(ReplyCheckDMs, mc.LastEdit())
	assert.NoError(eng.ProcessEvent(ctx, clickStart(newbie, "ix3")))
	assert.Equal(ReplyAlreadyPending, mc.LastEdit())
	assert.Len(mc.DirectMessagesTo("user1"), 1)
	assert.Equal([]string{"ix1", "ix2", "ix3"}, mc.Acknowledged)

	noGuild := clickStart(newbie, "ix4")
	noGuild.GuildID = ""
	assert.NoError(eng.ProcessEvent(ctx, noGuild))
	assert.Equal(ReplyGuildOnly, mc.LastEdit())
}

func TestStartVerificationDMFailure(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, mc, _ := EngineTestFixture()
	defer eng.Close()

	mc.FailDirectMessage["user1"] = true
	assert.NoError(eng.ProcessEvent(ctx, clickStart(newbie, "ix1")))
	assert.Equal(ReplyDMFailed, mc.LastEdit())
	assert.False(eng.Challenges.Pending("user1"))

	// the challenge was cancelled, so the user may start over
	mc.FailDirectMessage["user1"] = false
	assert.NoError(eng.ProcessEvent(ctx, clickStart(newbie, "ix2")))
	assert.Equal(ReplyCheckDMs, mc.LastEdit())
	assert.True(eng.Challenges.Pending("user1"))
}

func TestAnswerRetryThenCorrect(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, mc, clock := EngineTestFixture()
	defer eng.Close()

	assert.NoError(eng.ProcessEvent(ctx, clickStart(newbie, "ix1")))
	assert.NoError(eng.ProcessEvent(ctx, directMsg(newbie, "4")))
	assert.Equal(ReplyIncorrect, lastDM(mc, "user1"))
	assert.True(eng.Challenges.Pending("user1"))

	clock.Advance(time.Minute)
	assert.NoError(eng.ProcessEvent(ctx, directMsg(newbie, "five")))
	assert.Equal(ReplyIncorrect, lastDM(mc, "user1"))

	assert.NoError(eng.ProcessEvent(ctx, directMsg(newbie, " 5 ")))
	assert.Equal(ReplyVerified, lastDM(mc, "user1"))
	ok, err := eng.Allowed.Contains(ctx, "user1")
	assert.NoError(err)
	assert.True(ok)
}

func TestAnswerExpired(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, mc, clock := EngineTestFixture()
	defer eng.Close()

	assert.NoError(eng.ProcessEvent(ctx, clickStart(newbie, "ix1")))
	clock.Advance(6 * time.Minute)
	assert.NoError(eng.ProcessEvent(ctx, directMsg(newbie, "5")))
	assert.Equal(ReplyExpired, lastDM(mc, "user1"))
	assert.Empty(mc.Grants)

	// the challenge is gone: further answers are not treated as verification traffic
	n := len(mc.DirectMessagesTo("user1"))
	assert.NoError(eng.ProcessEvent(ctx, directMsg(newbie, "5")))
	assert.Len(mc.DirectMessagesTo("user1"), n)
	ok, err := eng.Allowed.Contains(ctx, "user1")
	assert.NoError(err)
	assert.False(ok)
}

func TestDirectMessageWithoutChallenge(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, mc, _ := EngineTestFixture()
	defer eng.Close()

	assert.NoError(eng.ProcessEvent(ctx, directMsg(newbie, "hi bot")))
	assert.Empty(mc.DirectMsgs)
	assert.Empty(mc.Sent)
}

func TestVerifiedWithHierarchyProblem(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, mc, _ := EngineTestFixture()
	defer eng.Close()
	mc.AddRole("g1", platform.Role{ID: "r-verified", Name: "Verified", Position: 20})

	assert.NoError(eng.ProcessEvent(ctx, clickStart(newbie, "ix1")))
	assert.NoError(eng.ProcessEvent(ctx, directMsg(newbie, "5")))

	assert.Equal(ReplyVerifiedHierarchy, lastDM(mc, "user1"))
	assert.Equal([]string{roles.HierarchyNotice("Test Guild", "Verified")}, mc.DirectMessagesTo("owner1"))
	assert.Empty(mc.Grants)
	ok, err := eng.Allowed.Contains(ctx, "user1")
	assert.NoError(err)
	assert.True(ok)
}

func TestCommands(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	eng, mc, clock := EngineTestFixture()
	defer eng.Close()

	require.NoError(eng.ProcessEvent(ctx, guildMsg(clock, regular, "m1", "!ping")))
	clock.Advance(2 * time.Minute)
	require.NoError(eng.ProcessEvent(ctx, guildMsg(clock, regular, "m2", " !owner ")))

	msgs := mc.MessagesIn("c1")
	require.Len(msgs, 2)
	assert.Equal(ReplyPong, msgs[0].Msg.Content)
	assert.Equal("Server Owner: owner (ID: owner1)", msgs[1].Msg.Content)

	// commands are not available to unverified members
	require.NoError(eng.ProcessEvent(ctx, guildMsg(clock, newbie, "m3", "!ping")))
	msgs = mc.MessagesIn("c1")
	require.Len(msgs, 3)
	assert.NotEmpty(msgs[2].Msg.Buttons)
}

func TestBotAuthorsIgnored(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, mc, clock := EngineTestFixture()
	defer eng.Close()

	bot := platform.User{ID: "bot1", Tag: "otherbot", Bot: true}
	for i := 0; i < 3; i++ {
		assert.NoError(eng.ProcessEvent(ctx, guildMsg(clock, bot, fmt.Sprintf("m%d", i), "beep")))
	}
	assert.NoError(eng.ProcessEvent(ctx, directMsg(bot, "boop")))
	assert.Empty(mc.Calls)
}

func TestMemberUpdated(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, mc, _ := EngineTestFixture()
	defer eng.Close()

	before := &platform.Member{GuildID: "g1", User: newbie, Nickname: "n"}
	after := platform.Member{GuildID: "g1", User: platform.User{ID: "user1", Tag: "renamed"}, Nickname: "m"}
	assert.NoError(eng.ProcessEvent(ctx, &MemberUpdatedEvent{GuildID: "g1", Before: before, After: after}))
	assert.NoError(eng.ProcessEvent(ctx, &MemberUpdatedEvent{GuildID: "g1", After: after}))
	assert.Empty(mc.Calls)
}

type bogusEvent struct{}

func (e *bogusEvent) Kind() EventKind { return KindGuildJoined }

type unknownEvent struct{}

func (e *unknownEvent) Kind() EventKind { return EventKind("unknown") }

func TestProcessEventFailures(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _, _ := EngineTestFixture()
	defer eng.Close()

	assert.Error(eng.ProcessEvent(ctx, &bogusEvent{}))
	assert.Error(eng.ProcessEvent(ctx, &unknownEvent{}))

	eng.handlers[KindMemberUpdated] = func(ctx context.Context, evt Event) error {
		panic("boom")
	}
	err := eng.ProcessEvent(ctx, &MemberUpdatedEvent{GuildID: "g1"})
	assert.ErrorContains(err, "boom")
}

func TestConcurrentUsers(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, mc, _ := EngineTestFixture()
	defer eng.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		u := platform.User{ID: fmt.Sprintf("u%d", i), Tag: fmt.Sprintf("user%d", i)}
		mc.AddMember("g1", u)
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(eng.ProcessEvent(ctx, clickStart(u, "ix-"+u.ID)))
			assert.NoError(eng.ProcessEvent(ctx, directMsg(u, "5")))
		}()
	}
	wg.Wait()

	assert.Equal(0, eng.Challenges.Len())
	assert.Len(mc.CreatedRoles, 1)
	assert.Len(mc.Grants, 20)
}

// MockClient whose role listing runs a hook first, eg to stall or interleave other events mid-provisioning.
type hookedClient struct {
	*platform.MockClient
	beforeGuildRoles func()
}

func (c *hookedClient) GuildRoles(ctx context.Context, guildID string) ([]platform.Role, error) {
	if c.beforeGuildRoles != nil {
		c.beforeGuildRoles()
	}
	return c.MockClient.GuildRoles(ctx, guildID)
}

func hookedFixture() (*Engine, *hookedClient, *TestClock) {
	eng, mc, clock := EngineTestFixture()
	eng.Close()
	hc := &hookedClient{MockClient: mc}
	fresh := NewEngine(hc, allowlist.NewMemAllowList("user2"), ratewindow.NewMemTracker(), DefaultConfig(), slog.Default())
	fresh.Now = clock.Now
	fresh.Challenges.Now = clock.Now
	fresh.Challenges.Pick = func(n int) int { return 0 }
	return fresh, hc, clock
}

func TestConcurrentBurstTripsOnce(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	eng, hc, clock := hookedFixture()
	defer eng.Close()
	hc.beforeGuildRoles = func() { time.Sleep(50 * time.Millisecond) }

	require.NoError(eng.ProcessEvent(ctx, guildMsg(clock, regular, "m1", "one")))
	clock.Advance(time.Second)
	second := guildMsg(clock, regular, "m2", "two")
	clock.Advance(time.Second)
	third := guildMsg(clock, regular, "m3", "three")

	var wg sync.WaitGroup
	for _, evt := range []*MessageEvent{second, third} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(eng.ProcessEvent(ctx, evt))
		}()
	}
	wg.Wait()

	msgs := hc.MessagesIn("c1")
	require.Len(msgs, 1)
	assert.Equal(fmt.Sprintf(ReplyBurstAssigned, "Stunnerr"), msgs[0].Msg.Content)
	assert.Len(hc.Grants, 1)
}

func TestStartDuringVerifiedRoleProvisioning(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	eng, hc, _ := hookedFixture()
	defer eng.Close()

	require.NoError(eng.ProcessEvent(ctx, clickStart(newbie, "ix1")))

	// the member clicks the still-visible prompt while the verified role is being applied
	var clickErr error
	var once sync.Once
	hc.beforeGuildRoles = func() {
		once.Do(func() { clickErr = eng.ProcessEvent(ctx, clickStart(newbie, "ix2")) })
	}
	require.NoError(eng.ProcessEvent(ctx, directMsg(newbie, "5")))
	require.NoError(clickErr)

	assert.Equal(ReplyAlreadyVerified, hc.Edits[len(hc.Edits)-1].Text)
	assert.Equal("ix2", hc.Edits[len(hc.Edits)-1].InteractionID)
	assert.Equal(0, eng.Challenges.Len())
	assert.Equal([]string{fmt.Sprintf(QuestionText, "What is 2 + 3? (answer with a number)", 5), ReplyVerified}, hc.DirectMessagesTo("user1"))
}

func TestDegradedRepliesDoNotPromiseOwnerNotice(t *testing.T) {
	for _, text := range []string{ReplyBurstNoPrivilege, ReplyBurstHierarchy, ReplyVerifiedNoPrivilege, ReplyVerifiedHierarchy} {
		assert.NotContains(t, text, "has been notified")
	}
}
