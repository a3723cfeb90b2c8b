package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/agentworkforce/botsync/internal/config"
	"github.com/agentworkforce/botsync/internal/localsource"
	"github.com/agentworkforce/botsync/internal/logging"
	"github.com/agentworkforce/botsync/internal/studioapi"
)

func main() {
	logger, err := logging.New(os.Getenv(config.EnvLogLevel), os.Getenv(config.EnvLogFormat), os.Stderr)
	if err != nil {
		slog.Error("invalid logging settings", logging.Error(err))
		os.Exit(2)
	}

	addr := envOrDefault("STUDIO_STUB_ADDR", ":8080")
	apiKey := envOrDefault(config.EnvAPIKey, "dev-key")
	apiSecret := envOrDefault(config.EnvAPISecret, "dev-secret")
	if apiKey == "dev-key" || apiSecret == "dev-secret" {
		logger.Warn("using development credentials; set " + config.EnvAPIKey + " and " + config.EnvAPISecret)
	}

	studio := studioapi.NewServer(studioapi.Config{
		APIKey:       apiKey,
		APISecret:    apiSecret,
		MaxSkew:      durationEnv(logger, "STUDIO_STUB_MAX_SKEW", 5*time.Minute),
		MaxBodyBytes: int64Env(logger, "STUDIO_STUB_MAX_BODY_BYTES", 0),
		Logger:       logger,
	})
	if seed := strings.TrimSpace(os.Getenv("STUDIO_STUB_SEED")); seed != "" {
		count, err := seedFromSource(context.Background(), studio, seed)
		if err != nil {
			logger.Error("seeding studio failed", slog.String("source", seed), logging.Error(err))
			os.Exit(1)
		}
		logger.Info("studio seeded", slog.String("source", seed), slog.Int("flows", count))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              addr,
		Handler:           studio,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("studio stub listening", slog.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", logging.Error(err))
		os.Exit(1)
	}
}

// seedFromSource loads flows and airules from any local source DSN into the
// stub, as if an earlier sync had pushed them.
func seedFromSource(ctx context.Context, studio *studioapi.Server, dsn string) (int, error) {
	source, err := localsource.Open(dsn)
	if err != nil {
		return 0, err
	}
	defer source.Close()

	flows, err := source.ListFlows(ctx)
	if err != nil {
		return 0, err
	}
	for _, flow := range flows {
		studio.SeedFlow(flow)
	}
	rules, err := source.Airules(ctx)
	if err != nil {
		return 0, err
	}
	if rules != nil {
		studio.SeedAirules(rules)
	}
	return len(flows), nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func durationEnv(logger *slog.Logger, name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		logger.Warn("invalid duration, using fallback", slog.String("env", name), slog.String("value", raw))
		return fallback
	}
	return value
}

func int64Env(logger *slog.Logger, name string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		logger.Warn("invalid integer, using fallback", slog.String("env", name), slog.String("value", raw))
		return fallback
	}
	return value
}
