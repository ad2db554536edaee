package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheckPolicyJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    HealthCheckPolicy
		wantErr bool
	}{
		{
			name: "duration strings",
			body: `{"interval":"10s","timeout":"1.5s","retries":2}`,
			want: HealthCheckPolicy{Interval: 10 * time.Second, Timeout: 1500 * time.Millisecond, Retries: 2},
		},
		{
			name: "nanoseconds",
			body: `{"interval":30000000000,"timeout":5000000000,"retries":3}`,
			want: HealthCheckPolicy{Interval: 30 * time.Second, Timeout: 5 * time.Second, Retries: 3},
		},
		{
			name: "probe and null",
			body: `{"timeout":null,"probe":{"type":"tcp","endpoint":"127.0.0.1:9000"}}`,
			want: HealthCheckPolicy{Probe: &Probe{Type: ProbeTCP, Endpoint: "127.0.0.1:9000"}},
		},
		{name: "bad string", body: `{"timeout":"soon"}`, wantErr: true},
		{name: "bad type", body: `{"timeout":true}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got HealthCheckPolicy
			err := json.Unmarshal([]byte(tt.body), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigurePatchAcceptsDurationStrings(t *testing.T) {
	var patch DefinitionPatch
	require.NoError(t, json.Unmarshal([]byte(`{"healthCheck":{"timeout":"5s","retries":4}}`), &patch))
	require.NotNil(t, patch.HealthCheck)
	assert.Equal(t, 5*time.Second, patch.HealthCheck.Timeout)

	out, err := json.Marshal(&WorkerDefinition{Name: "w", HealthCheck: DefaultHealthCheckPolicy()})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"interval":"30s"`)
	assert.Contains(t, string(out), `"timeout":"5s"`)
}
