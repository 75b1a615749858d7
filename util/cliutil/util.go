package cliutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
)

type LogOptions struct {
	// path to write to; "" or "-" means stdout
	LogPath string

	// text|json
	LogFormat string

	// info|debug|warn|error
	LogLevel string
}

// Flags for choosing log level and format, shared by commands.
var LogFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "log-level",
		Usage:   "log verbosity level (eg: warn, info, debug)",
		EnvVars: []string{"WARDEN_LOG_LEVEL", "LOG_LEVEL"},
	},
	&cli.StringFlag{
		Name:    "log-format",
		Usage:   "log output format: text or json",
		EnvVars: []string{"WARDEN_LOG_FMT", "LOG_FORMAT"},
	},
	&cli.StringFlag{
		Name:    "log-file",
		Usage:   "path to write logs to (default stdout)",
		EnvVars: []string{"WARDEN_LOG_FILE"},
	},
}

func LogOptionsFromCLI(cctx *cli.Context) LogOptions {
	return LogOptions{
		LogPath:   cctx.String("log-file"),
		LogFormat: cctx.String("log-format"),
		LogLevel:  cctx.String("log-level"),
	}
}

func firstenv(env_var_names ...string) string {
	for _, env_var_name := range env_var_names {
		val := os.Getenv(env_var_name)
		if val != "" {
			return val
		}
	}
	return ""
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %#v", s)
	}
}

// SetupSlog integrates passed in options and env vars, and sets the result as the default logger.
//
// passing default cliutil.LogOptions{} is ok.
//
// WARDEN_LOG_LEVEL=info|debug|warn|error
//
// WARDEN_LOG_FMT=text|json
//
// WARDEN_LOG_FILE=path (or "-" or "" for stdout)
func SetupSlog(options LogOptions) (*slog.Logger, error) {
	if options.LogLevel == "" {
		options.LogLevel = firstenv("WARDEN_LOG_LEVEL", "LOG_LEVEL")
	}
	if options.LogFormat == "" {
		options.LogFormat = firstenv("WARDEN_LOG_FMT", "LOG_FORMAT")
	}
	if options.LogPath == "" {
		options.LogPath = os.Getenv("WARDEN_LOG_FILE")
	}

	if options.LogPath == "" || options.LogPath == "-" {
		logger, err := newLogger(os.Stdout, options)
		if err != nil {
			return nil, err
		}
		slog.SetDefault(logger)
		return logger, nil
	}

	f, err := os.OpenFile(options.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", options.LogPath, err)
	}
	logger, err := newLogger(f, options)
	if err != nil {
		f.Close()
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

func newLogger(out io.Writer, options LogOptions) (*slog.Logger, error) {
	level, err := parseLevel(options.LogLevel)
	if err != nil {
		return nil, err
	}
	hopts := slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(options.LogFormat) {
	case "", "text":
		handler = slog.NewTextHandler(out, &hopts)
	case "json":
		handler = slog.NewJSONHandler(out, &hopts)
	default:
		return nil, fmt.Errorf("invalid log format: %#v", options.LogFormat)
	}
	return slog.New(handler), nil
}
