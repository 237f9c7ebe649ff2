package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gitcachehq/git-cache/internal/cache"
	"github.com/gitcachehq/git-cache/internal/config"
)

var (
	loggerLevel = new(slog.LevelVar)
	logger      *slog.Logger

	levelStrings = map[string]slog.Level{
		"trace": slog.Level(-8),
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}

	flagConfigPath string
	flagLogLevel   string
)

func init() {
	loggerLevel.Set(slog.LevelInfo)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: loggerLevel}))
}

var rootCmd = &cobra.Command{
	Use:           "gitcache",
	Short:         "A local cache of bare git mirrors and ready-to-use checkouts",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if v, ok := levelStrings[strings.ToLower(flagLogLevel)]; ok {
			loggerLevel.Set(v)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to the config file (default: XDG config search path)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (trace|debug|info|warn|error)")
}

// Execute runs the root command, mapping any *cache.CacheError to the exit
// code taxonomy described in the CLI surface.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error(err.Error())
		os.Exit(exitCodeFor(err))
	}
}

// newCache loads the layered config and builds the orchestrator shared by
// every subcommand.
func newCache() (*cache.Cache, error) {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cache.New(cfg, logger), nil
}

// exitCodeFor maps a CacheError.Kind to a process exit code; unrecognized
// errors (including cobra's own usage errors) exit 1.
func exitCodeFor(err error) int {
	var cerr *cache.CacheError
	if !asCacheError(err, &cerr) {
		return 1
	}
	switch cerr.Kind {
	case cache.KindArgs, cache.KindConfig:
		return 2
	case cache.KindNotFound:
		return 3
	case cache.KindBusy:
		return 4
	case cache.KindNetwork, cache.KindHostAPI:
		return 5
	case cache.KindValidation, cache.KindCorruption:
		return 6
	case cache.KindForbidden:
		return 7
	case cache.KindOutOfSpace:
		return 8
	default:
		return 1
	}
}

func asCacheError(err error, target **cache.CacheError) bool {
	for err != nil {
		if cerr, ok := err.(*cache.CacheError); ok {
			*target = cerr
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
