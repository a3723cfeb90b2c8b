package botsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentworkforce/botsync/internal/logging"
)

// LocalSource supplies the local bot definition. Absent collections are
// returned as empty values, not errors.
type LocalSource interface {
	ListFlows(ctx context.Context) ([]Flow, error)
	Airules(ctx context.Context) (Airules, error)
}

type SyncerOptions struct {
	Logger  *slog.Logger
	Metrics *Metrics
}

// Syncer pushes a LocalSource to a RemoteStore. It holds no state between
// calls; callers must not run two syncs against the same bot concurrently.
type Syncer struct {
	remote  RemoteStore
	local   LocalSource
	logger  *slog.Logger
	metrics *Metrics
}

func NewSyncer(remote RemoteStore, local LocalSource, opts SyncerOptions) (*Syncer, error) {
	if remote == nil {
		return nil, fmt.Errorf("remote store is required")
	}
	if local == nil {
		return nil, fmt.Errorf("local source is required")
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Syncer{
		remote:  remote,
		local:   local,
		logger:  logging.OrDiscard(opts.Logger),
		metrics: metrics,
	}, nil
}

func (s *Syncer) Metrics() *Metrics {
	return s.metrics
}

// Plan lists remote flows, reads the local source and reconciles them
// without mutating anything.
func (s *Syncer) Plan(ctx context.Context) (Plan, error) {
	plan, _, err := s.prepare(ctx)
	return plan, err
}

// Sync applies deletes, then updates, then creates, one call at a time, and
// finally replaces the airules when they are present. The first failure
// stops the run; calls already made are not undone.
func (s *Syncer) Sync(ctx context.Context) (err error) {
	started := time.Now()
	defer func() { s.metrics.observeSync(started, err) }()
	s.logger.Info("sync started")

	plan, rules, err := s.prepare(ctx)
	if err != nil {
		s.logger.Error("sync failed", logging.Error(err))
		return err
	}
	s.logger.Info("sync plan",
		slog.Int("delete", len(plan.ToDelete)),
		slog.Int("update", len(plan.ToUpdate)),
		slog.Int("create", len(plan.ToCreate)))

	if err := s.apply(ctx, plan, rules); err != nil {
		s.logger.Error("sync failed", logging.Error(err))
		return err
	}
	s.logger.Info("sync completed", slog.Duration("duration", time.Since(started)))
	return nil
}

func (s *Syncer) prepare(ctx context.Context) (Plan, Airules, error) {
	remoteFlows, err := s.remote.ListFlows(ctx)
	s.metrics.observeCall(OpListFlows, err)
	if err != nil {
		return Plan{}, nil, err
	}
	localFlows, err := s.local.ListFlows(ctx)
	if err != nil {
		return Plan{}, nil, err
	}
	rules, err := s.local.Airules(ctx)
	if err != nil {
		return Plan{}, nil, err
	}
	for _, name := range DuplicateNames(remoteFlows) {
		s.logger.Warn("studio has several flows with the same name; each is updated from the same local flow",
			logging.FlowName(name))
	}
	plan := ComputePlan(localFlows, remoteFlows)
	s.metrics.observePlan(plan)
	return plan, rules, nil
}

func (s *Syncer) apply(ctx context.Context, plan Plan, rules Airules) error {
	for _, flow := range plan.ToDelete {
		err := s.remote.DeleteFlow(ctx, flow.ID())
		s.metrics.observeCall(OpDeleteFlow, err)
		if err != nil {
			return fmt.Errorf("delete flow %q: %w", flow.Name(), err)
		}
		s.logger.Debug("flow deleted", logging.Phase("delete"), logging.FlowName(flow.Name()), logging.FlowID(flow.ID()))
	}
	for _, flow := range plan.ToUpdate {
		_, err := s.remote.UpdateFlow(ctx, flow.ID(), flow)
		s.metrics.observeCall(OpUpdateFlow, err)
		if err != nil {
			return fmt.Errorf("update flow %q: %w", flow.Name(), err)
		}
		s.logger.Debug("flow updated", logging.Phase("update"), logging.FlowName(flow.Name()), logging.FlowID(flow.ID()))
	}
	for _, flow := range plan.ToCreate {
		created, err := s.remote.CreateFlow(ctx, flow)
		s.metrics.observeCall(OpCreateFlow, err)
		if err != nil {
			return fmt.Errorf("create flow %q: %w", flow.Name(), err)
		}
		s.logger.Debug("flow created", logging.Phase("create"), logging.FlowName(flow.Name()), logging.FlowID(created.ID()))
	}
	if rules == nil {
		s.logger.Debug("airules absent; leaving studio airules untouched")
		return nil
	}
	err := s.remote.UpdateAirules(ctx, rules)
	s.metrics.observeCall(OpUpdateAirules, err)
	if err != nil {
		return fmt.Errorf("update airules: %w", err)
	}
	s.logger.Debug("airules updated", logging.Phase("airules"), slog.Int("rules", len(rules)))
	return nil
}

func (s *Syncer) Build(ctx context.Context) error {
	err := s.remote.Build(ctx)
	s.metrics.observeCall(OpBuild, err)
	if err != nil {
		return err
	}
	s.logger.Info("build triggered", logging.Operation(OpBuild))
	return nil
}

func (s *Syncer) CreateLabel(ctx context.Context, name string) (Label, error) {
	label, err := s.remote.CreateLabel(ctx, name)
	s.metrics.observeCall(OpCreateLabel, err)
	if err != nil {
		return nil, err
	}
	s.logger.Info("label created", logging.Operation(OpCreateLabel), slog.String("label", name))
	return label, nil
}

func (s *Syncer) DeleteLabel(ctx context.Context, name string) (Label, error) {
	label, err := s.remote.DeleteLabel(ctx, name)
	s.metrics.observeCall(OpDeleteLabel, err)
	if err != nil {
		return nil, err
	}
	s.logger.Info("label deleted", logging.Operation(OpDeleteLabel), slog.String("label", name))
	return label, nil
}
