package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentworkforce/botsync/internal/botsync"
	"github.com/agentworkforce/botsync/internal/localsource"
)

func newSyncCommand(opts *rootOptions) *cobra.Command {
	var build bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Make the studio's flows and airules match the local source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				started := time.Now()
				if err := a.syncer.Sync(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sync complete in %s\n", time.Since(started).Round(time.Millisecond))
				if !build {
					return nil
				}
				if err := a.syncer.Build(ctx); err != nil {
					return fmt.Errorf("build: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "build triggered")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&build, "build", false, "trigger a studio build after a successful sync")
	return cmd
}

func newPlanCommand(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what sync would change without changing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "json" {
				return fmt.Errorf("invalid format %q: must be text or json", format)
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				plan, err := a.syncer.Plan(ctx)
				if err != nil {
					return err
				}
				report := botsync.NewPlanReport(plan)
				if format == "json" {
					return report.WriteJSON(cmd.OutOrStdout())
				}
				return report.WriteText(cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format (text|json)")
	return cmd
}

func newBuildCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Trigger a studio build of the bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.syncer.Build(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "build triggered")
				return nil
			})
		},
	}
}

func newLabelCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "label",
		Short: "Manage bot version labels",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Label the current bot version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				label, err := a.syncer.CreateLabel(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(label))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a version label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				label, err := a.syncer.DeleteLabel(ctx, args[0])
				if err != nil {
					return err
				}
				if label == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "label %s not found\n", args[0])
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(label))
				return nil
			})
		},
	})
	return cmd
}

func newWatchCommand(opts *rootOptions) *cobra.Command {
	var (
		debounce       time.Duration
		interval       time.Duration
		intervalJitter float64
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync on every local change until interrupted",
		Long: `watch runs a sync at startup and again whenever the local directory
changes. With --interval it also syncs periodically, which picks up edits
made in the studio itself. Sources other than directories need --interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				var paths []string
				if watchable, ok := a.source.(localsource.Watchable); ok {
					paths = watchable.WatchPaths()
				}
				watcher, err := botsync.NewWatcher(a.syncer, botsync.WatcherOptions{
					Paths:          paths,
					Debounce:       debounce,
					Interval:       interval,
					IntervalJitter: intervalJitter,
					Logger:         a.logger,
				})
				if err != nil {
					return err
				}
				a.logger.Info("watching",
					slog.Any("paths", paths),
					slog.Duration("interval", interval))
				return watcher.Run(ctx)
			})
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "quiet period after a change before syncing")
	cmd.Flags().DurationVar(&interval, "interval", 0, "also sync on this interval (0 disables)")
	cmd.Flags().Float64Var(&intervalJitter, "interval-jitter", 0.2, "interval jitter ratio (0.0-1.0)")
	return cmd
}
