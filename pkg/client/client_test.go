package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/foreman/pkg/api"
	"github.com/cuemby/foreman/pkg/control"
	"github.com/cuemby/foreman/pkg/events"
	"github.com/cuemby/foreman/pkg/monitor"
	"github.com/cuemby/foreman/pkg/registry"
	"github.com/cuemby/foreman/pkg/router"
	"github.com/cuemby/foreman/pkg/supervisor"
	"github.com/cuemby/foreman/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, defs ...*types.WorkerDefinition) (*Client, *events.Broker) {
	t.Helper()

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	reg := registry.NewRegistry(registry.Config{Broker: broker})
	for _, d := range defs {
		require.NoError(t, reg.Register(d))
	}
	sup, err := supervisor.NewSupervisor(supervisor.Config{
		Registry:        reg,
		Broker:          broker,
		RestartDelay:    10 * time.Millisecond,
		ShutdownTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { sup.ShutdownAll(context.Background()) })

	mon, err := monitor.NewMonitor(monitor.Config{Registry: reg, Supervisor: sup, Broker: broker})
	require.NoError(t, err)
	rt, err := router.NewRouter(reg, sup)
	require.NoError(t, err)
	ctl, err := control.NewController(control.Config{
		Registry: reg, Supervisor: sup, Monitor: mon, Router: rt, Broker: broker, Version: "test",
	})
	require.NoError(t, err)

	srv, err := api.NewServer(api.Config{Controller: ctl, Broker: broker})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	c, err := NewClient(ts.URL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, broker
}

func TestNewClient(t *testing.T) {
	_, err := NewClient("")
	assert.Error(t, err)

	c, err := NewClient("127.0.0.1:7070")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:7070", c.baseURL)

	c, err = NewClient("https://foreman.local/")
	require.NoError(t, err)
	assert.Equal(t, "https://foreman.local", c.baseURL)
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t, &types.WorkerDefinition{
		Name:         "alpha",
		Command:      "sleep",
		Args:         []string{"60"},
		Capabilities: []string{"web_search"},
		Priority:     1,
	})

	list, err := c.ListServers(ctx, true)
	require.NoError(t, err)
	require.Len(t, list.Servers, 1)
	assert.Equal(t, types.WorkerStatusStopped, list.Servers[0].Status)

	started, err := c.StartServer(ctx, "alpha")
	require.NoError(t, err)
	assert.True(t, started.Success)

	_, err = c.StartServer(ctx, "alpha")
	assert.ErrorIs(t, err, types.ErrStateConflict)

	health, err := c.HealthCheck(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, health.Summary.Healthy)

	route, err := c.RouteRequest(ctx, &control.RouteRequest{Capability: "web_search"})
	require.NoError(t, err)
	assert.Equal(t, "alpha", route.RoutedTo)

	priority := 5
	cfg, err := c.ConfigureServer(ctx, "alpha", &types.DefinitionPatch{Priority: &priority})
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Definition.Priority)

	reset, err := c.ResetServer(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, reset.Definition.Priority)

	restarted, err := c.RestartServer(ctx, "alpha")
	require.NoError(t, err)
	assert.Contains(t, restarted.Message, "restart count: 1")

	status, err := c.ServerStatus(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, status.RestartCount)

	overview, err := c.SystemOverview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, overview.Workers.Total)

	caps, err := c.GetCapabilities(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, caps.Summary.Total)

	logs, err := c.ServerLogs(ctx, "alpha", 10)
	require.NoError(t, err)
	assert.Equal(t, "alpha", logs.ServerName)

	stopped, err := c.StopServer(ctx, "alpha")
	require.NoError(t, err)
	assert.True(t, stopped.Success)

	_, err = c.RouteRequest(ctx, &control.RouteRequest{Capability: "web_search"})
	assert.ErrorIs(t, err, types.ErrNoEligibleWorker)

	_, err = c.ServerStatus(ctx, "ghost")
	assert.ErrorIs(t, err, types.ErrConfig)
	assert.Contains(t, err.Error(), "unknown server: ghost")
}

func TestListEventsDisabled(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.ListEvents(context.Background(), 10)
	assert.ErrorIs(t, err, types.ErrConfig)
}

func TestStreamEvents(t *testing.T) {
	c, broker := newTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *events.Event, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.StreamEvents(ctx, "alpha", func(ev *events.Event) {
			got <- ev
			cancel()
		})
	}()

	require.Eventually(t, func() bool { return broker.SubscriberCount() > 0 },
		2*time.Second, 10*time.Millisecond)
	broker.Publish(&events.Event{Type: events.EventWorkerStopped, Worker: "alpha", Message: "bye"})

	select {
	case ev := <-got:
		assert.Equal(t, events.EventWorkerStopped, ev.Type)
		assert.Equal(t, "bye", ev.Message)
	case <-time.After(3 * time.Second):
		t.Fatal("no event received")
	}
	assert.NoError(t, <-done)
}

func TestDecodeErrorWithoutPayload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer ts.Close()

	c, err := NewClient(ts.URL)
	require.NoError(t, err)

	_, err = c.SystemOverview(context.Background())
	assert.ErrorIs(t, err, types.ErrInternal)
	assert.Contains(t, err.Error(), "upstream exploded")
}
