package botsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	mu      sync.Mutex
	flows   []Flow
	calls   []string
	rules   Airules
	nextID  int
	failOn  map[string]error
	listErr error
}

func (f *fakeRemote) record(call string) error {
	f.calls = append(f.calls, call)
	if err, ok := f.failOn[call]; ok {
		return err
	}
	return nil
}

func (f *fakeRemote) ListFlows(context.Context) ([]Flow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]Flow, 0, len(f.flows))
	for _, flow := range f.flows {
		out = append(out, flow.Clone())
	}
	return out, nil
}

func (f *fakeRemote) CreateFlow(_ context.Context, flow Flow) (Flow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("create " + flow.Name()); err != nil {
		return nil, err
	}
	f.nextID++
	created := flow.Clone()
	created["id"] = []byte(fmt.Sprintf(`"new_%d"`, f.nextID))
	f.flows = append(f.flows, created)
	return created, nil
}

func (f *fakeRemote) UpdateFlow(_ context.Context, id string, flow Flow) (Flow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("update " + id); err != nil {
		return nil, err
	}
	for i, existing := range f.flows {
		if existing.ID() == id {
			f.flows[i] = flow.Clone()
		}
	}
	return flow, nil
}

func (f *fakeRemote) DeleteFlow(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("delete " + id); err != nil {
		return err
	}
	kept := f.flows[:0]
	for _, existing := range f.flows {
		if existing.ID() != id {
			kept = append(kept, existing)
		}
	}
	f.flows = kept
	return nil
}

func (f *fakeRemote) UpdateAirules(_ context.Context, rules Airules) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(fmt.Sprintf("airules %d", len(rules))); err != nil {
		return err
	}
	f.rules = rules
	return nil
}

func (f *fakeRemote) Build(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("build")
}

func (f *fakeRemote) CreateLabel(_ context.Context, name string) (Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("label create " + name); err != nil {
		return nil, err
	}
	return Label(fmt.Sprintf(`{"label":%q}`, name)), nil
}

func (f *fakeRemote) DeleteLabel(_ context.Context, name string) (Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return nil, f.record("label delete " + name)
}

func (f *fakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type staticSource struct {
	flows    []Flow
	rules    Airules
	flowsErr error
	rulesErr error
}

func (s staticSource) ListFlows(context.Context) ([]Flow, error) {
	return s.flows, s.flowsErr
}

func (s staticSource) Airules(context.Context) (Airules, error) {
	return s.rules, s.rulesErr
}

func newTestSyncer(t *testing.T, remote RemoteStore, local LocalSource) *Syncer {
	t.Helper()
	syncer, err := NewSyncer(remote, local, SyncerOptions{})
	require.NoError(t, err)
	return syncer
}

func TestNewSyncerRequiresCollaborators(t *testing.T) {
	_, err := NewSyncer(nil, staticSource{}, SyncerOptions{})
	assert.Error(t, err)
	_, err = NewSyncer(&fakeRemote{}, nil, SyncerOptions{})
	assert.Error(t, err)
}

func TestSyncFreshBotCreatesInLocalOrder(t *testing.T) {
	remote := &fakeRemote{}
	local := staticSource{flows: flows(t, `{"name":"a"}`, `{"name":"b"}`)}

	require.NoError(t, newTestSyncer(t, remote, local).Sync(context.Background()))

	assert.Equal(t, []string{"create a", "create b"}, remote.Calls())
}

func TestSyncPhasesRunInOrder(t *testing.T) {
	remote := &fakeRemote{flows: flows(t,
		`{"id":"1","name":"a","body":"Y"}`,
		`{"id":"2","name":"b"}`,
		`{"id":"3","name":"z"}`)}
	local := staticSource{
		flows: flows(t, `{"name":"c"}`, `{"name":"a","body":"X"}`),
		rules: Airules{[]byte(`{"flow":"a"}`)},
	}

	require.NoError(t, newTestSyncer(t, remote, local).Sync(context.Background()))

	assert.Equal(t, []string{"delete 2", "delete 3", "update 1", "create c", "airules 1"}, remote.Calls())
	remaining, err := remote.ListFlows(context.Background())
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, `"X"`, string(remaining[0]["body"]))
	assert.Equal(t, "1", remaining[0].ID())
}

func TestSyncEmptyLocalWithEmptyAirules(t *testing.T) {
	remote := &fakeRemote{flows: flows(t, `{"id":"1","name":"a"}`, `{"id":"2","name":"b"}`)}
	local := staticSource{flows: []Flow{}, rules: Airules{}}

	require.NoError(t, newTestSyncer(t, remote, local).Sync(context.Background()))

	assert.Equal(t, []string{"delete 1", "delete 2", "airules 0"}, remote.Calls())
	assert.NotNil(t, remote.rules)
}

func TestSyncSkipsAbsentAirules(t *testing.T) {
	remote := &fakeRemote{}
	local := staticSource{flows: flows(t, `{"name":"a"}`)}

	require.NoError(t, newTestSyncer(t, remote, local).Sync(context.Background()))

	assert.Equal(t, []string{"create a"}, remote.Calls())
}

func TestSyncStopsAtFirstFailure(t *testing.T) {
	boom := &RemoteCallError{Op: OpDeleteFlow, Method: "DELETE", Path: "/api/bot/flows/2", StatusCode: 500, Message: "boom"}
	remote := &fakeRemote{
		flows: flows(t,
			`{"id":"1","name":"gone1"}`,
			`{"id":"2","name":"gone2"}`,
			`{"id":"3","name":"a"}`),
		failOn: map[string]error{"delete 2": boom},
	}
	local := staticSource{
		flows: flows(t, `{"name":"a"}`, `{"name":"new"}`),
		rules: Airules{},
	}
	syncer := newTestSyncer(t, remote, local)

	err := syncer.Sync(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteCall)
	var callErr *RemoteCallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, 500, callErr.StatusCode)
	assert.Contains(t, err.Error(), `delete flow "gone2"`)
	assert.Equal(t, []string{"delete 1", "delete 2"}, remote.Calls())

	remaining, listErr := remote.ListFlows(context.Background())
	require.NoError(t, listErr)
	assert.Equal(t, []string{"gone2", "a"}, names(remaining))

	m := syncer.Metrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.remoteCalls.WithLabelValues(OpDeleteFlow, outcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.remoteCalls.WithLabelValues(OpDeleteFlow, outcomeError)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.lastSuccess))
}

func TestSyncLocalErrorMakesNoMutation(t *testing.T) {
	remote := &fakeRemote{flows: flows(t, `{"id":"1","name":"a"}`)}
	local := staticSource{flowsErr: errors.New("unreadable")}

	err := newTestSyncer(t, remote, local).Sync(context.Background())

	require.Error(t, err)
	assert.Empty(t, remote.Calls())
}

func TestSyncListFailureMakesNoMutation(t *testing.T) {
	remote := &fakeRemote{listErr: &RemoteCallError{Op: OpListFlows, StatusCode: 401, Message: "unauthorized"}}
	local := staticSource{flows: flows(t, `{"name":"a"}`), rules: Airules{}}

	err := newTestSyncer(t, remote, local).Sync(context.Background())

	assert.ErrorIs(t, err, ErrRemoteCall)
	assert.Empty(t, remote.Calls())
}

func TestSyncRecordsMetrics(t *testing.T) {
	remote := &fakeRemote{flows: flows(t, `{"id":"1","name":"a"}`, `{"id":"2","name":"b"}`)}
	local := staticSource{flows: flows(t, `{"name":"a"}`, `{"name":"c"}`, `{"name":"d"}`)}
	syncer := newTestSyncer(t, remote, local)

	require.NoError(t, syncer.Sync(context.Background()))

	m := syncer.Metrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.planFlows.WithLabelValues("delete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.planFlows.WithLabelValues("update")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.planFlows.WithLabelValues("create")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.remoteCalls.WithLabelValues(OpCreateFlow, outcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.remoteCalls.WithLabelValues(OpListFlows, outcomeSuccess)))
	assert.Greater(t, testutil.ToFloat64(m.lastSuccess), 0.0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestPlanDoesNotMutate(t *testing.T) {
	remote := &fakeRemote{flows: flows(t, `{"id":"1","name":"a"}`)}
	local := staticSource{flows: flows(t, `{"name":"b"}`), rules: Airules{}}

	plan, err := newTestSyncer(t, remote, local).Plan(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names(plan.ToDelete))
	assert.Equal(t, []string{"b"}, names(plan.ToCreate))
	assert.Empty(t, remote.Calls())
}

func TestSyncerBuildAndLabels(t *testing.T) {
	remote := &fakeRemote{}
	syncer := newTestSyncer(t, remote, staticSource{})
	ctx := context.Background()

	require.NoError(t, syncer.Build(ctx))
	label, err := syncer.CreateLabel(ctx, "v1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"label":"v1"}`, string(label))
	_, err = syncer.DeleteLabel(ctx, "v1")
	require.NoError(t, err)

	assert.Equal(t, []string{"build", "label create v1", "label delete v1"}, remote.Calls())
}
