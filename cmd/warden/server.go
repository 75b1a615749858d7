package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/wardenbot/warden/internal/ticker"
	"github.com/wardenbot/warden/moderation/allowlist"
	"github.com/wardenbot/warden/moderation/discord"
	"github.com/wardenbot/warden/moderation/engine"
	"github.com/wardenbot/warden/moderation/ratewindow"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

type Server struct {
	logger  *slog.Logger
	session *discordgo.Session
	engine  *engine.Engine
}

type Config struct {
	DiscordToken    string
	UsersFile       string
	RedisURL        string
	SlackWebhookURL string
	Engine          engine.Config
	Logger          *slog.Logger
}

// Picks redis-backed state when a URL is configured, otherwise the local JSON file and in-process windows.
func buildStores(config Config, logger *slog.Logger) (allowlist.AllowList, ratewindow.Tracker, error) {
	if config.RedisURL != "" {
		allowed, err := allowlist.NewRedisAllowList(config.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing redis allow-list: %w", err)
		}
		rates, err := ratewindow.NewRedisTracker(config.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing redis rate tracker: %w", err)
		}
		logger.Info("using redis for shared state")
		return allowed, rates, nil
	}
	if config.UsersFile == "" {
		return allowlist.NewMemAllowList(), ratewindow.NewMemTracker(), nil
	}
	allowed := allowlist.LoadFileAllowList(config.UsersFile, logger)
	logger.Info("loaded verified users", "path", config.UsersFile, "count", allowed.Len())
	return allowed, ratewindow.NewMemTracker(), nil
}

func NewServer(config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if config.DiscordToken == "" {
		return nil, errors.New("discord token is required")
	}

	session, err := discord.NewSession(config.DiscordToken)
	if err != nil {
		return nil, err
	}
	discord.SetLogger(logger.With("system", "discordgo"))

	allowed, rates, err := buildStores(config, logger)
	if err != nil {
		return nil, err
	}

	eng := engine.NewEngine(discord.NewClient(session), allowed, rates, config.Engine, logger)
	if config.SlackWebhookURL != "" {
		logger.Info("configuring slack moderation log")
		eng.ModLog = engine.NewSlackNotifier(config.SlackWebhookURL)
	}

	return &Server{
		logger:  logger,
		session: session,
		engine:  eng,
	}, nil
}

// Connects to the gateway and processes events until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	detach := discord.Attach(s.session, s.engine, s.logger)
	defer detach()

	if err := s.session.Open(); err != nil {
		return fmt.Errorf("opening discord gateway connection: %w", err)
	}
	s.logger.Info("discord session open")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := ticker.Periodically(ctx, 30*time.Second, s.engine.UpdateGauges)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("shutting down")
		// stop receiving events before cancelling scheduled tasks
		if err := s.session.Close(); err != nil {
			s.logger.Error("failed to close discord session", "err", err)
		}
		s.engine.Close()
		return nil
	})
	return g.Wait()
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}
