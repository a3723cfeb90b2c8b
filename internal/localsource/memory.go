package localsource

import (
	"context"
	"sync"

	"github.com/agentworkforce/botsync/internal/botsync"
)

// MemorySource serves a fixed bot definition. Callers get copies, so the
// stored documents never change underneath a sync.
type MemorySource struct {
	mu    sync.Mutex
	flows []botsync.Flow
	rules botsync.Airules
}

var _ Source = (*MemorySource)(nil)

func NewMemorySource(flows []botsync.Flow, rules botsync.Airules) *MemorySource {
	s := &MemorySource{}
	s.Set(flows, rules)
	return s
}

// Set replaces the stored definition. nil rules mean absent airules.
func (s *MemorySource) Set(flows []botsync.Flow, rules botsync.Airules) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows = cloneFlows(flows)
	s.rules = cloneAirules(rules)
}

func (s *MemorySource) ListFlows(context.Context) ([]botsync.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneFlows(s.flows), nil
}

func (s *MemorySource) Airules(context.Context) (botsync.Airules, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAirules(s.rules), nil
}

func (s *MemorySource) Close() error {
	return nil
}

func cloneFlows(flows []botsync.Flow) []botsync.Flow {
	out := make([]botsync.Flow, 0, len(flows))
	for _, flow := range flows {
		out = append(out, flow.Clone())
	}
	return out
}

func cloneAirules(rules botsync.Airules) botsync.Airules {
	if rules == nil {
		return nil
	}
	out := make(botsync.Airules, len(rules))
	for i, rule := range rules {
		out[i] = append([]byte(nil), rule...)
	}
	return out
}
