package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentworkforce/botsync/internal/botsync"
	"github.com/agentworkforce/botsync/internal/config"
	"github.com/agentworkforce/botsync/internal/localsource"
	"github.com/agentworkforce/botsync/internal/logging"
)

const pushJob = "botsync"

type rootOptions struct {
	configFile string
	dotEnv     string

	// Flag values; applied over the loaded config only when set.
	apiKey      string
	apiSecret   string
	baseURL     string
	source      string
	timeout     time.Duration
	rateLimit   float64
	logLevel    string
	logFormat   string
	pushgateway string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "botsync",
		Short: "Push a local bot definition to the studio",
		Long: `botsync reconciles the flows and airules of a local bot definition with
the studio's copy: flows missing locally are deleted, flows present on both
sides are updated, new local flows are created and the airules are replaced.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "YAML config file (default "+config.DefaultFile+" if present)")
	flags.StringVar(&opts.dotEnv, "env-file", config.DefaultDotEnv, ".env file to load")
	flags.StringVar(&opts.apiKey, "api-key", "", "studio API key ("+config.EnvAPIKey+")")
	flags.StringVar(&opts.apiSecret, "api-secret", "", "studio API secret ("+config.EnvAPISecret+")")
	flags.StringVar(&opts.baseURL, "base-url", "", "studio base URL ("+config.EnvBaseURL+")")
	flags.StringVar(&opts.source, "source", defaults.Source, "local source: directory, sqlite://, postgres:// or memory:// ("+config.EnvSource+")")
	flags.DurationVar(&opts.timeout, "timeout", defaults.Timeout, "per-request HTTP timeout ("+config.EnvTimeout+")")
	flags.Float64Var(&opts.rateLimit, "rate-limit", defaults.RateLimit, "max studio requests per second, 0 for none ("+config.EnvRateLimit+")")
	flags.StringVar(&opts.logLevel, "log-level", defaults.LogLevel, "debug|info|warn|error ("+config.EnvLogLevel+")")
	flags.StringVar(&opts.logFormat, "log-format", defaults.LogFormat, "text|json ("+config.EnvLogFormat+")")
	flags.StringVar(&opts.pushgateway, "pushgateway", "", "Prometheus Pushgateway URL for run metrics ("+config.EnvPushgateway+")")

	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newPlanCommand(opts))
	cmd.AddCommand(newBuildCommand(opts))
	cmd.AddCommand(newLabelCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	return cmd
}

// app is everything a command needs once configuration is resolved.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	source  localsource.Source
	syncer  *botsync.Syncer
	metrics *botsync.Metrics
}

// resolveConfig layers changed flags over file, .env and environment values.
func (o *rootOptions) resolveConfig(cmd *cobra.Command, logger *slog.Logger) (config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{File: o.configFile, DotEnv: o.dotEnv, Logger: logger})
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("api-key") {
		cfg.APIKey = o.apiKey
	}
	if flags.Changed("api-secret") {
		cfg.APISecret = o.apiSecret
	}
	if flags.Changed("base-url") {
		cfg.BaseURL = o.baseURL
	}
	if flags.Changed("source") {
		cfg.Source = o.source
	}
	if flags.Changed("timeout") {
		cfg.Timeout = o.timeout
	}
	if flags.Changed("rate-limit") {
		cfg.RateLimit = o.rateLimit
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = o.logFormat
	}
	if flags.Changed("pushgateway") {
		cfg.Pushgateway = o.pushgateway
	}
	return cfg, cfg.Validate()
}

func (o *rootOptions) newApp(cmd *cobra.Command) (*app, error) {
	// Config warnings are emitted before the configured logger exists.
	bootLogger, err := logging.New("warn", "text", cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	cfg, err := o.resolveConfig(cmd, bootLogger)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	source, err := localsource.Open(cfg.Source, localsource.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open source %q: %w", cfg.Source, err)
	}
	client := botsync.NewHTTPClient(botsync.HTTPClientOptions{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		APISecret:         cfg.APISecret,
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		RequestsPerSecond: cfg.RateLimit,
	})
	metrics := botsync.NewMetrics()
	syncer, err := botsync.NewSyncer(client, source, botsync.SyncerOptions{Logger: logger, Metrics: metrics})
	if err != nil {
		_ = source.Close()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, source: source, syncer: syncer, metrics: metrics}, nil
}

// close pushes run metrics when a Pushgateway is configured and releases the
// source. A failed push is logged, never returned.
func (a *app) close(ctx context.Context) {
	if a.cfg.Pushgateway != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Timeout)
		defer cancel()
		if err := a.metrics.Push(pushCtx, a.cfg.Pushgateway, pushJob); err != nil {
			a.logger.Warn("metrics push failed", slog.String("pushgateway", a.cfg.Pushgateway), logging.Error(err))
		}
	}
	if err := a.source.Close(); err != nil {
		a.logger.Warn("closing source failed", logging.Error(err))
	}
}

// withApp runs fn with a resolved app and always cleans it up.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := o.newApp(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer a.close(ctx)
	return fn(ctx, a)
}
