package registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/foreman/pkg/events"
	"github.com/cuemby/foreman/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *recordingPublisher) Publish(ev *events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) kinds() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type memStore struct {
	saved map[string]*types.WorkerDefinition
	err   error
}

func (m *memStore) SaveDefinition(def *types.WorkerDefinition) error {
	if m.err != nil {
		return m.err
	}
	if m.saved == nil {
		m.saved = make(map[string]*types.WorkerDefinition)
	}
	m.saved[def.Name] = def.Clone()
	return nil
}

func (m *memStore) DeleteDefinition(name string) error {
	if m.err != nil {
		return m.err
	}
	delete(m.saved, name)
	return nil
}

func def(name string, priority int, caps ...string) *types.WorkerDefinition {
	return &types.WorkerDefinition{
		Name:         name,
		Command:      "sleep",
		Args:         []string{"60"},
		Capabilities: caps,
		Priority:     priority,
	}
}

func TestRegister(t *testing.T) {
	pub := &recordingPublisher{}
	r := NewRegistry(Config{Broker: pub})

	require.NoError(t, r.Register(def("alpha", 1, "web_search")))
	assert.True(t, r.Has("alpha"))
	assert.Equal(t, 1, r.Len())

	got, err := r.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, types.DefaultHealthCheckPolicy(), got.HealthCheck, "defaults applied")
	assert.Equal(t, []events.EventType{events.EventWorkerRegistered}, pub.kinds())
}

func TestRegisterRejects(t *testing.T) {
	tests := []struct {
		name string
		def  *types.WorkerDefinition
	}{
		{"nil", nil},
		{"empty name", &types.WorkerDefinition{Command: "sleep"}},
		{"empty command", &types.WorkerDefinition{Name: "x"}},
		{"negative retries", &types.WorkerDefinition{Name: "x", Command: "sleep",
			HealthCheck: types.HealthCheckPolicy{Retries: -1}}},
		{"http probe without endpoint", &types.WorkerDefinition{Name: "x", Command: "sleep",
			HealthCheck: types.HealthCheckPolicy{Probe: &types.Probe{Type: types.ProbeHTTP}}}},
		{"exec probe without command", &types.WorkerDefinition{Name: "x", Command: "sleep",
			HealthCheck: types.HealthCheckPolicy{Probe: &types.Probe{Type: types.ProbeExec}}}},
		{"unknown probe", &types.WorkerDefinition{Name: "x", Command: "sleep",
			HealthCheck: types.HealthCheckPolicy{Probe: &types.Probe{Type: "grpc"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(Config{})
			err := r.Register(tt.def)
			assert.ErrorIs(t, err, types.ErrConfig)
			assert.Equal(t, 0, r.Len())
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry(Config{})
	require.NoError(t, r.Register(def("alpha", 1)))

	err := r.Register(def("alpha", 2))
	assert.ErrorIs(t, err, types.ErrConfig)
	assert.Contains(t, err.Error(), "already registered")

	got, err := r.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Priority, "original kept")
}

func TestRegisterCopiesInput(t *testing.T) {
	r := NewRegistry(Config{})
	d := def("alpha", 1, "a")
	require.NoError(t, r.Register(d))

	d.Capabilities[0] = "mutated"
	got, err := r.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.Capabilities)

	got.Capabilities[0] = "mutated again"
	again, _ := r.Get("alpha")
	assert.Equal(t, []string{"a"}, again.Capabilities)
}

func TestOnRegister(t *testing.T) {
	r := NewRegistry(Config{})

	var seen []string
	r.OnRegister(func(d *types.WorkerDefinition) {
		seen = append(seen, d.Name)
	})

	require.NoError(t, r.Register(def("beta", 1)))
	require.NoError(t, r.Register(def("alpha", 1)))
	assert.Error(t, r.Register(def("alpha", 1)))

	assert.Equal(t, []string{"beta", "alpha"}, seen)
}

func TestConfigure(t *testing.T) {
	pub := &recordingPublisher{}
	store := &memStore{}
	r := NewRegistry(Config{Broker: pub, Store: store})
	require.NoError(t, r.Register(def("alpha", 5, "web_search")))

	priority := 1
	desc := "primary search"
	merged, err := r.Configure("alpha", &types.DefinitionPatch{
		Priority:    &priority,
		Description: &desc,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, merged.Priority)
	assert.Equal(t, "primary search", merged.Description)
	assert.Equal(t, []string{"web_search"}, merged.Capabilities, "untouched fields kept")
	assert.Equal(t, "sleep", merged.Command)

	require.Contains(t, store.saved, "alpha")
	assert.Equal(t, 1, store.saved["alpha"].Priority)

	assert.Equal(t, []events.EventType{
		events.EventWorkerRegistered,
		events.EventWorkerConfigured,
	}, pub.kinds())
}

func TestConfigureErrors(t *testing.T) {
	r := NewRegistry(Config{})
	require.NoError(t, r.Register(def("alpha", 1)))

	_, err := r.Configure("ghost", &types.DefinitionPatch{})
	assert.ErrorIs(t, err, types.ErrConfig)
	assert.True(t, types.IsUnknownWorker(err))

	empty := ""
	_, err = r.Configure("alpha", &types.DefinitionPatch{Command: &empty})
	assert.ErrorIs(t, err, types.ErrConfig)

	got, _ := r.Get("alpha")
	assert.Equal(t, "sleep", got.Command, "invalid patch not applied")
}

func TestConfigureStoreFailureIsNotFatal(t *testing.T) {
	r := NewRegistry(Config{Store: &memStore{err: errors.New("disk full")}})
	require.NoError(t, r.Register(def("alpha", 1)))

	timeout := 2 * time.Second
	merged, err := r.Configure("alpha", &types.DefinitionPatch{
		HealthCheck: &types.HealthCheckPolicy{Timeout: timeout},
	})
	require.NoError(t, err)
	assert.Equal(t, timeout, merged.HealthCheck.Timeout)
	assert.Equal(t, types.DefaultHealthCheckPolicy().Retries, merged.HealthCheck.Retries)
}

func TestListSortedAndCapabilityIndex(t *testing.T) {
	r := NewRegistry(Config{})
	require.NoError(t, r.Register(def("gamma", 1, "b")))
	require.NoError(t, r.Register(def("alpha", 1, "a", "b")))
	require.NoError(t, r.Register(def("beta", 1, "a", "a")))

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "gamma", list[2].Name)

	idx := r.CapabilityIndex()
	assert.Equal(t, []string{"alpha", "beta"}, idx["a"])
	assert.Equal(t, []string{"alpha", "gamma"}, idx["b"])
}

func TestGetUnknown(t *testing.T) {
	r := NewRegistry(Config{})
	_, err := r.Get("ghost")
	assert.ErrorIs(t, err, types.ErrConfig)
	assert.Contains(t, err.Error(), "unknown server: ghost")
}

func TestResetReturnsToRegisteredDefinition(t *testing.T) {
	pub := &recordingPublisher{}
	store := &memStore{}
	r := NewRegistry(Config{Broker: pub, Store: store})
	require.NoError(t, r.Register(def("alpha", 5, "web_search")))

	priority := 1
	_, err := r.Configure("alpha", &types.DefinitionPatch{
		Priority:     &priority,
		Capabilities: []string{"ocr"},
	})
	require.NoError(t, err)
	require.Contains(t, store.saved, "alpha")

	reset, err := r.Reset("alpha")
	require.NoError(t, err)
	assert.Equal(t, 5, reset.Priority)
	assert.Equal(t, []string{"web_search"}, reset.Capabilities)
	assert.NotContains(t, store.saved, "alpha", "persisted override deleted")

	got, err := r.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Priority)
	assert.Contains(t, r.CapabilityIndex(), "web_search")
	assert.NotContains(t, r.CapabilityIndex(), "ocr")

	assert.Equal(t, []events.EventType{
		events.EventWorkerRegistered,
		events.EventWorkerConfigured,
		events.EventWorkerConfigured,
	}, pub.kinds())

	_, err = r.Reset("ghost")
	assert.True(t, types.IsUnknownWorker(err))
}

func TestResetStoreFailureLeavesOverride(t *testing.T) {
	store := &memStore{}
	r := NewRegistry(Config{Store: store})
	require.NoError(t, r.Register(def("alpha", 5)))

	priority := 1
	_, err := r.Configure("alpha", &types.DefinitionPatch{Priority: &priority})
	require.NoError(t, err)

	store.err = errors.New("disk full")
	_, err = r.Reset("alpha")
	assert.ErrorIs(t, err, types.ErrInternal)

	got, _ := r.Get("alpha")
	assert.Equal(t, 1, got.Priority, "override kept when the store refuses")
}

func TestRestoreKeepsBaseline(t *testing.T) {
	store := &memStore{}
	r := NewRegistry(Config{Store: store})
	require.NoError(t, r.Register(def("alpha", 5)))

	persisted := def("alpha", 9)
	require.NoError(t, r.Restore(persisted))
	assert.Empty(t, store.saved, "restore does not write back")

	got, _ := r.Get("alpha")
	assert.Equal(t, 9, got.Priority)

	_, err := r.Reset("alpha")
	require.NoError(t, err)
	got, _ = r.Get("alpha")
	assert.Equal(t, 5, got.Priority)

	err = r.Restore(def("ghost", 1))
	assert.True(t, types.IsUnknownWorker(err))

	bad := def("alpha", 1)
	bad.Command = ""
	assert.ErrorIs(t, r.Restore(bad), types.ErrConfig)
}
