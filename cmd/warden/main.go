package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wardenbot/warden/moderation/engine"
	"github.com/wardenbot/warden/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "warden",
		Usage:   "discord verification and burst-moderation bot",
		Version: versioninfo.Short(),
	}

	app.Flags = cliutil.LogFlags

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "connect to discord and moderate",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "discord-token",
			Usage:    "bot token for the discord application",
			Required: true,
			EnvVars:  []string{"BOT_TOKEN", "DISCORD_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "users-file",
			Usage:   "path of JSON file holding verified user IDs (ignored when redis is configured)",
			Value:   "users.json",
			EnvVars: []string{"WARDEN_USERS_FILE"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL, for shared allow-list and rate window state",
			EnvVars: []string{"WARDEN_REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "slack incoming webhook for the moderation log (optional)",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3989",
			EnvVars: []string{"WARDEN_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "verified-role",
			Usage:   "name of role granted on successful verification",
			Value:   "Verified",
			EnvVars: []string{"WARDEN_VERIFIED_ROLE"},
		},
		&cli.StringFlag{
			Name:    "burst-role",
			Usage:   "name of marker role granted to members who post in bursts",
			Value:   "Stunnerr",
			EnvVars: []string{"WARDEN_BURST_ROLE"},
		},
		&cli.DurationFlag{
			Name:    "prompt-ttl",
			Usage:   "how long verification prompts stay in the channel (0 keeps them)",
			Value:   10 * time.Second,
			EnvVars: []string{"WARDEN_PROMPT_TTL"},
		},
		&cli.DurationFlag{
			Name:    "owner-notice-cooldown",
			Usage:   "minimum interval between repeated notices to a guild owner",
			Value:   10 * time.Minute,
			EnvVars: []string{"WARDEN_OWNER_NOTICE_COOLDOWN"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger, err := cliutil.SetupSlog(cliutil.LogOptionsFromCLI(cctx))
		if err != nil {
			return err
		}

		shutdownOTEL, err := configOTEL(ctx, "warden")
		if err != nil {
			return err
		}
		defer shutdownOTEL()

		ecfg := engine.DefaultConfig()
		ecfg.VerifiedRole.Name = cctx.String("verified-role")
		ecfg.BurstRole.Name = cctx.String("burst-role")
		ecfg.PromptTTL = cctx.Duration("prompt-ttl")
		ecfg.OwnerNoticeCooldown = cctx.Duration("owner-notice-cooldown")

		srv, err := NewServer(Config{
			DiscordToken:    cctx.String("discord-token"),
			UsersFile:       cctx.String("users-file"),
			RedisURL:        cctx.String("redis-url"),
			SlackWebhookURL: cctx.String("slack-webhook-url"),
			Engine:          ecfg,
			Logger:          logger,
		})
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run warden: %w", err)
		}
		return nil
	},
}
