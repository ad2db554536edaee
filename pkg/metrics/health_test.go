package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetHealth(t *testing.T) {
	t.Helper()
	healthChecker = newHealthChecker()
}

func TestRegisterComponent(t *testing.T) {
	resetHealth(t)

	RegisterComponent("supervisor", true, "running")

	require.Len(t, healthChecker.components, 1)
	comp := healthChecker.components["supervisor"]
	assert.True(t, comp.Healthy)
	assert.Equal(t, "running", comp.Message)
}

func TestGetHealth(t *testing.T) {
	resetHealth(t)
	SetVersion("1.0.0")

	RegisterComponent(ComponentAPI, true, "")
	RegisterComponent(ComponentSupervisor, true, "")

	health := GetHealth()
	assert.Equal(t, "healthy", health.Status)
	assert.Len(t, health.Components, 2)
	assert.Equal(t, "1.0.0", health.Version)

	UpdateComponent(ComponentStore, false, "database closed")
	health = GetHealth()
	assert.Equal(t, "unhealthy", health.Status)
	assert.Equal(t, "unhealthy: database closed", health.Components[ComponentStore])
}

func TestGetReadiness(t *testing.T) {
	tests := []struct {
		name       string
		setup      func()
		wantStatus string
		wantMsg    string
	}{
		{
			name: "all critical ready",
			setup: func() {
				RegisterComponent(ComponentSupervisor, true, "")
				RegisterComponent(ComponentAPI, true, "")
			},
			wantStatus: "ready",
		},
		{
			name: "critical missing",
			setup: func() {
				RegisterComponent(ComponentAPI, true, "")
			},
			wantStatus: "not_ready",
			wantMsg:    "waiting for supervisor",
		},
		{
			name: "critical unhealthy",
			setup: func() {
				RegisterComponent(ComponentSupervisor, true, "")
				RegisterComponent(ComponentAPI, false, "listener closed")
			},
			wantStatus: "not_ready",
			wantMsg:    "waiting for api",
		},
		{
			name: "store becomes critical",
			setup: func() {
				SetCriticalComponents(ComponentSupervisor, ComponentAPI, ComponentStore)
				RegisterComponent(ComponentSupervisor, true, "")
				RegisterComponent(ComponentAPI, true, "")
			},
			wantStatus: "not_ready",
			wantMsg:    "waiting for store",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			tt.setup()

			readiness := GetReadiness()
			assert.Equal(t, tt.wantStatus, readiness.Status)
			assert.Equal(t, tt.wantMsg, readiness.Message)
		})
	}
}

func TestHealthHandlers(t *testing.T) {
	resetHealth(t)
	SetVersion("test")
	RegisterComponent(ComponentSupervisor, true, "")

	w := httptest.NewRecorder()
	HealthHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var health HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "test", health.Version)

	// api not registered yet
	w = httptest.NewRecorder()
	ReadyHandler()(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	RegisterComponent(ComponentSupervisor, false, "stopped")
	w = httptest.NewRecorder()
	HealthHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
