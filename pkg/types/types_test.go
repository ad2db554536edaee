package types

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildCapabilityIndex(t *testing.T) {
	defs := []*WorkerDefinition{
		{Name: "w2", Capabilities: []string{"x", "y"}},
		{Name: "w1", Capabilities: []string{"x", "x", ""}},
		{Name: "w3"},
	}

	idx := BuildCapabilityIndex(defs)

	assert.Equal(t, []string{"w1", "w2"}, idx["x"])
	assert.Equal(t, []string{"w2"}, idx["y"])
	assert.NotContains(t, idx, "")
	assert.Equal(t, []string{"x", "y"}, idx.Names())
}

func TestDefinitionPatchApply(t *testing.T) {
	base := &WorkerDefinition{
		Name:         "ocr",
		Command:      "ocr-server",
		Args:         []string{"--port", "9000"},
		Env:          map[string]string{"A": "1"},
		Capabilities: []string{"extraction"},
		Priority:     5,
		HealthCheck:  DefaultHealthCheckPolicy(),
	}

	prio := 0
	patch := &DefinitionPatch{Priority: &prio, Capabilities: []string{"extraction", "ocr"}}
	merged := patch.Apply(base)

	assert.Equal(t, 0, merged.Priority)
	assert.Equal(t, []string{"extraction", "ocr"}, merged.Capabilities)
	assert.Equal(t, "ocr-server", merged.Command, "untouched fields survive")
	assert.Equal(t, []string{"--port", "9000"}, merged.Args)

	// The original is not mutated
	assert.Equal(t, 5, base.Priority)
	assert.Equal(t, []string{"extraction"}, base.Capabilities)
}

func TestDefinitionPatchIsEmpty(t *testing.T) {
	var nilPatch *DefinitionPatch
	assert.True(t, nilPatch.IsEmpty())
	assert.True(t, (&DefinitionPatch{}).IsEmpty())

	cat := "analytics"
	assert.False(t, (&DefinitionPatch{Category: &cat}).IsEmpty())
}

func TestCloneIsDeep(t *testing.T) {
	orig := &WorkerDefinition{
		Name:         "n",
		Env:          map[string]string{"K": "V"},
		Capabilities: []string{"a"},
		HealthCheck: HealthCheckPolicy{
			Interval: time.Second,
			Probe:    &Probe{Type: ProbeExec, Command: []string{"true"}},
		},
	}
	c := orig.Clone()
	c.Env["K"] = "changed"
	c.Capabilities[0] = "b"
	c.HealthCheck.Probe.Command[0] = "false"

	assert.Equal(t, "V", orig.Env["K"])
	assert.Equal(t, "a", orig.Capabilities[0])
	assert.Equal(t, "true", orig.HealthCheck.Probe.Command[0])
}

func TestRoutable(t *testing.T) {
	tests := []struct {
		status WorkerStatus
		health HealthStatus
		want   bool
	}{
		{WorkerStatusRunning, HealthHealthy, true},
		{WorkerStatusRunning, HealthWarning, false},
		{WorkerStatusRunning, HealthError, false},
		{WorkerStatusStopped, HealthHealthy, false},
		{WorkerStatusStarting, HealthHealthy, false},
		{WorkerStatusError, HealthError, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.status, tt.health), func(t *testing.T) {
			h := &WorkerHandle{Status: tt.status, HealthStatus: tt.health}
			assert.Equal(t, tt.want, h.Routable())
		})
	}
}

func TestErrorKinds(t *testing.T) {
	err := NewError(KindStateConflict, "start", "ocr", "server %s is already running", "ocr")
	wrapped := fmt.Errorf("outer: %w", err)

	assert.True(t, errors.Is(wrapped, ErrStateConflict))
	assert.False(t, errors.Is(wrapped, ErrConfig))
	assert.Equal(t, KindStateConflict, KindOf(wrapped))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Contains(t, err.Error(), "already running")

	cause := errors.New("exec: not found")
	spawn := WrapError(KindSpawnFailure, "start", "ocr", cause)
	assert.ErrorIs(t, spawn, cause)
	assert.Equal(t, "start: exec: not found", spawn.Error())

	assert.Equal(t, KindConfig, UnknownWorker("stop", "ghost").Kind)
}
