package router

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/foreman/pkg/registry"
	"github.com/cuemby/foreman/pkg/supervisor"
	"github.com/cuemby/foreman/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func worker(name string, priority int, caps ...string) *types.WorkerDefinition {
	return &types.WorkerDefinition{
		Name:         name,
		Command:      "sleep",
		Args:         []string{"60"},
		Capabilities: caps,
		Priority:     priority,
	}
}

func setup(t *testing.T, defs ...*types.WorkerDefinition) (*Router, *supervisor.Supervisor, *registry.Registry) {
	t.Helper()

	reg := registry.NewRegistry(registry.Config{})
	for _, d := range defs {
		require.NoError(t, reg.Register(d))
	}
	sup, err := supervisor.NewSupervisor(supervisor.Config{
		Registry:        reg,
		RestartDelay:    10 * time.Millisecond,
		ShutdownTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { sup.ShutdownAll(context.Background()) })

	r, err := NewRouter(reg, sup)
	require.NoError(t, err)
	return r, sup, reg
}

func TestRouteScenarios(t *testing.T) {
	r, sup, _ := setup(t, worker("W1", 1, "x"), worker("W2", 2, "x"))
	ctx := context.Background()
	require.NoError(t, sup.Start(ctx, "W1"))
	require.NoError(t, sup.Start(ctx, "W2"))

	// Both running: lower priority wins
	d, err := r.Route("x", "")
	require.NoError(t, err)
	assert.Equal(t, "W1", d.Worker)
	assert.Equal(t, []string{"W1", "W2"}, d.Eligible)

	// W1 stopped: fall back to W2
	require.NoError(t, sup.Stop("W1"))
	d, err = r.Route("x", "")
	require.NoError(t, err)
	assert.Equal(t, "W2", d.Worker)
	assert.Equal(t, []string{"W2"}, d.Eligible)

	// Both stopped: nothing eligible
	require.NoError(t, sup.Stop("W2"))
	_, err = r.Route("x", "")
	require.Error(t, err)
	assert.Equal(t, types.KindNoEligibleWorker, types.KindOf(err))
}

func TestRouteConfigureChangesOrder(t *testing.T) {
	r, sup, reg := setup(t, worker("W1", 5, "x"), worker("W2", 2, "x"))
	ctx := context.Background()
	require.NoError(t, sup.Start(ctx, "W1"))
	require.NoError(t, sup.Start(ctx, "W2"))

	d, err := r.Route("x", "")
	require.NoError(t, err)
	assert.Equal(t, "W2", d.Worker)

	before, err := sup.Handle("W1")
	require.NoError(t, err)

	zero := 0
	_, err = reg.Configure("W1", &types.DefinitionPatch{Priority: &zero})
	require.NoError(t, err)

	d, err = r.Route("x", "")
	require.NoError(t, err)
	assert.Equal(t, "W1", d.Worker)

	after, err := sup.Handle("W1")
	require.NoError(t, err)
	assert.Equal(t, before.PID, after.PID, "configure must not touch the running process")
	assert.Equal(t, types.WorkerStatusRunning, after.Status)
}

func TestRoutePreferred(t *testing.T) {
	r, sup, _ := setup(t, worker("a", 1, "x"), worker("b", 2, "x"), worker("c", 3, "x"))
	ctx := context.Background()
	require.NoError(t, sup.Start(ctx, "a"))
	require.NoError(t, sup.Start(ctx, "b"))

	tests := []struct {
		name      string
		preferred string
		want      string
	}{
		{name: "eligible preference wins", preferred: "b", want: "b"},
		{name: "stopped preference falls back", preferred: "c", want: "a"},
		{name: "unknown preference falls back", preferred: "ghost", want: "a"},
		{name: "no preference", preferred: "", want: "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := r.Route("x", tt.preferred)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Worker)
		})
	}
}

func TestRouteTieBreaksByName(t *testing.T) {
	r, sup, _ := setup(t, worker("zeta", 1, "x"), worker("alpha", 1, "x"))
	ctx := context.Background()
	require.NoError(t, sup.Start(ctx, "zeta"))
	require.NoError(t, sup.Start(ctx, "alpha"))

	d, err := r.Route("x", "")
	require.NoError(t, err)
	assert.Equal(t, "alpha", d.Worker)
	assert.Equal(t, []string{"alpha", "zeta"}, d.Eligible)
}

func TestRouteNeverPicksUnhealthy(t *testing.T) {
	r, sup, _ := setup(t, worker("sick", 0, "x"), worker("fine", 9, "x"))
	ctx := context.Background()
	require.NoError(t, sup.Start(ctx, "sick"))
	require.NoError(t, sup.Start(ctx, "fine"))

	v, err := sup.Inspect("sick")
	require.NoError(t, err)
	_, err = sup.RecordHealth("sick", v.Generation, types.HealthWarning, time.Now())
	require.NoError(t, err)

	d, err := r.Route("x", "sick")
	require.NoError(t, err)
	assert.Equal(t, "fine", d.Worker)
	assert.NotContains(t, d.Eligible, "sick")
}

func TestRouteRequiresCapability(t *testing.T) {
	r, _, _ := setup(t)

	_, err := r.Route("", "")
	assert.Equal(t, types.KindConfig, types.KindOf(err))
}

func TestRouteUnknownCapability(t *testing.T) {
	r, sup, _ := setup(t, worker("W1", 1, "x"))
	require.NoError(t, sup.Start(context.Background(), "W1"))

	_, err := r.Route("y", "")
	assert.Equal(t, types.KindNoEligibleWorker, types.KindOf(err))
}

func TestCapabilities(t *testing.T) {
	hinted := worker("custom", 1, "frobnicate")
	hinted.Category = "Tools"

	r, sup, _ := setup(t,
		worker("extractor", 1, "pdf_extraction", "ocr"),
		worker("reporter", 2, "sales_report", "ocr"),
		worker("mailer", 1, "send_email"),
		hinted,
	)
	require.NoError(t, sup.Start(context.Background(), "reporter"))

	caps := r.Capabilities("")
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"frobnicate", "ocr", "pdf_extraction", "sales_report", "send_email"}, names)

	byName := make(map[string]Capability)
	for _, c := range caps {
		byName[c.Name] = c
	}
	assert.Equal(t, []string{"extractor", "reporter"}, byName["ocr"].Servers)
	assert.True(t, byName["ocr"].Available)
	assert.False(t, byName["pdf_extraction"].Available)
	assert.True(t, byName["sales_report"].Available)
	assert.Equal(t, CategoryExtraction, byName["ocr"].Category)
	assert.Equal(t, CategoryAnalytics, byName["sales_report"].Category)
	assert.Equal(t, CategoryNotifications, byName["send_email"].Category)
	assert.Equal(t, "tools", byName["frobnicate"].Category)

	extraction := r.Capabilities("extraction")
	require.Len(t, extraction, 2)
	assert.Equal(t, "ocr", extraction[0].Name)
	assert.Equal(t, "pdf_extraction", extraction[1].Name)

	assert.Empty(t, r.Capabilities("nonexistent"))
}

func TestCapabilitiesIdempotent(t *testing.T) {
	r, sup, _ := setup(t, worker("a", 1, "x", "y"), worker("b", 2, "y", "z"))
	require.NoError(t, sup.Start(context.Background(), "b"))

	assert.Equal(t, r.Capabilities(""), r.Capabilities(""))
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		capability string
		want       string
	}{
		{"invoice_extraction", CategoryExtraction},
		{"OCR", CategoryExtraction},
		{"monthly_stats", CategoryAnalytics},
		{"sms_gateway", CategoryNotifications},
		{"web_scrape", CategoryWeb},
		{"file_backup", CategoryStorage},
		{"compute", CategoryGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.capability, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.capability))
		})
	}
}
