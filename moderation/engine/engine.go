package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wardenbot/warden/moderation/allowlist"
	"github.com/wardenbot/warden/moderation/challenge"
	"github.com/wardenbot/warden/moderation/platform"
	"github.com/wardenbot/warden/moderation/ratewindow"
	"github.com/wardenbot/warden/moderation/roles"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("warden")

type Config struct {
	// Role granted on successful verification
	VerifiedRole platform.RoleSpec
	// Marker role granted to members who trip the burst window
	BurstRole platform.RoleSpec
	// Verification prompts are deleted after this long. Zero leaves prompts in place.
	PromptTTL time.Duration
	// Repeat owner notices of the same kind are suppressed for this long
	OwnerNoticeCooldown time.Duration
	// Custom ID carried by the prompt button, matched by platform adapters
	StartButtonID string
	// How long a user has to answer a challenge
	ChallengeTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		VerifiedRole:        platform.RoleSpec{Name: "Verified", Color: 0x2ecc71},
		BurstRole:           platform.RoleSpec{Name: "Stunnerr", Color: 0xe74c3c},
		PromptTTL:           10 * time.Second,
		OwnerNoticeCooldown: 10 * time.Minute,
		StartButtonID:       "warden:verify:start",
		ChallengeTTL:        challenge.DefaultTTL,
	}
}

// runtime for routing platform events to verification and rate-moderation state, and issuing platform actions.
//
// All state is owned by the Engine instance: construct a fresh one per process (or per test). Events for different users may be processed concurrently.
type Engine struct {
	Logger     *slog.Logger
	Client     platform.Client
	Config     Config
	Allowed    allowlist.AllowList
	Challenges *challenge.Registry
	Rates      ratewindow.Tracker
	Roles      *roles.Provisioner
	// used to post a moderation log to an external channel (optional)
	ModLog Notifier
	// Clock used for rate windows when an event carries no timestamp
	Now func() time.Time

	handlers map[EventKind]handlerFunc
	tasks    *scheduler
}

type handlerFunc func(ctx context.Context, evt Event) error

func NewEngine(client platform.Client, allowed allowlist.AllowList, rates ratewindow.Tracker, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	reg := challenge.NewRegistry(allowed)
	if cfg.ChallengeTTL > 0 {
		reg.TTL = cfg.ChallengeTTL
	}
	owners := roles.NewOwnerNotifier(client, logger, cfg.OwnerNoticeCooldown)
	eng := &Engine{
		Logger:     logger,
		Client:     client,
		Config:     cfg,
		Allowed:    allowed,
		Challenges: reg,
		Rates:      rates,
		Roles:      roles.NewProvisioner(client, roles.NewRoleCache(1000, time.Hour), owners, logger),
		Now:        time.Now,
		tasks:      newScheduler(),
	}
	eng.handlers = map[EventKind]handlerFunc{
		KindGuildJoined:       handle(eng.handleGuildJoined),
		KindGuildMessage:      handle(eng.handleGuildMessage),
		KindDirectMessage:     handle(eng.handleDirectMessage),
		KindStartVerification: handle(eng.handleStartVerification),
		KindMemberUpdated:     handle(eng.handleMemberUpdated),
	}
	return eng
}

// adapts a handler for one concrete event type to the dispatch table
func handle[T Event](fn func(context.Context, T) error) handlerFunc {
	return func(ctx context.Context, evt Event) error {
		e, ok := evt.(T)
		if !ok {
			return fmt.Errorf("mismatched event type for kind %s: %T", evt.Kind(), evt)
		}
		return fn(ctx, e)
	}
}

// Processes a single platform event. Failures are isolated to the event: panics are recovered and returned as errors, and nothing here stops other events from being processed.
func (eng *Engine) ProcessEvent(ctx context.Context, evt Event) (err error) {
	kind := evt.Kind()
	ctx, span := tracer.Start(ctx, "ProcessEvent", trace.WithAttributes(attribute.String("kind", string(kind))))
	defer span.End()

	start := time.Now()
	eventProcessCount.WithLabelValues(string(kind)).Inc()

	// similar to an HTTP server, we want to recover any panics from event handling
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("moderation event execution exception", "err", r, "kind", kind)
			err = fmt.Errorf("panic processing %s event: %v", kind, r)
		}
		if err != nil {
			eventErrorCount.WithLabelValues(string(kind)).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		eventProcessDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	}()

	h, ok := eng.handlers[kind]
	if !ok {
		return fmt.Errorf("no handler for event kind: %s", kind)
	}
	return h(ctx, evt)
}

// Refreshes state gauges. Signature matches ticker.Periodically.
func (eng *Engine) UpdateGauges(ctx context.Context) error {
	pendingChallengesGauge.Set(float64(eng.Challenges.Len()))
	pendingTasksGauge.Set(float64(eng.tasks.Len()))
	return nil
}

// Cancels outstanding scheduled tasks and waits for any which are already running.
func (eng *Engine) Close() {
	eng.tasks.Close()
}

func (eng *Engine) modLog(ctx context.Context, text string) {
	if eng.ModLog == nil {
		return
	}
	if err := eng.ModLog.SendModLog(ctx, text); err != nil {
		eng.Logger.Warn("failed to post mod log", "err", err)
	}
}
