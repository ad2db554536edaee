package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/foreman/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fleetYAML = `
coordinator:
  api_addr: 0.0.0.0:9090
  data_dir: ${FOREMAN_TEST_DATA}
  health_interval: 15s
  restart_delay: 250ms
  log_level: debug
  autostart: true
workers:
  - name: extractor
    description: Document extraction
    command: /usr/local/bin/extractor
    args: ["--port", "9001"]
    env:
      MODE: fast
    work_dir: /srv/extractor
    capabilities: [pdf_extraction, ocr]
    tools: [extract_text]
    priority: 1
    health_check:
      interval: 10s
      timeout: 2s
      retries: 5
      probe:
        type: http
        endpoint: http://127.0.0.1:9001/health
  - name: mailer
    command: mailer
    capabilities: [send_email]
    priority: 2
`

const fleetTOML = `
[coordinator]
api_addr = "127.0.0.1:8080"
shutdown_timeout = "20s"

[[workers]]
name = "reporter"
command = "reporter"
args = ["--quiet"]
capabilities = ["sales_report"]
priority = 3

[workers.env]
REGION = "eu"

[workers.health_check]
timeout = "1s"
retries = 2

[workers.health_check.probe]
type = "exec"
command = ["reporter", "--ping"]
`

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("FOREMAN_TEST_DATA", "/tmp/foreman-data")

	cfg, err := Load(write(t, "fleet.yaml", fleetYAML))
	require.NoError(t, err)

	co := cfg.Coordinator
	assert.Equal(t, "0.0.0.0:9090", co.APIAddr)
	assert.Equal(t, "/tmp/foreman-data", co.DataDir)
	assert.Equal(t, 15*time.Second, co.HealthInterval)
	assert.Equal(t, 250*time.Millisecond, co.RestartDelay)
	assert.Equal(t, DefaultShutdownTimeout, co.ShutdownTimeout)
	assert.Equal(t, "debug", co.LogLevel)
	assert.True(t, co.Autostart)
	assert.Equal(t, DefaultMaxEvents, co.MaxEvents)

	require.Len(t, cfg.Workers, 2)
	w := cfg.Workers[0]
	assert.Equal(t, "extractor", w.Name)
	assert.Equal(t, []string{"--port", "9001"}, w.Args)
	assert.Equal(t, map[string]string{"MODE": "fast"}, w.Env)
	assert.Equal(t, "/srv/extractor", w.WorkDir)
	assert.Equal(t, []string{"pdf_extraction", "ocr"}, w.Capabilities)
	assert.Equal(t, []string{"extract_text"}, w.Tools)
	assert.Equal(t, 10*time.Second, w.HealthCheck.Interval)
	assert.Equal(t, 2*time.Second, w.HealthCheck.Timeout)
	assert.Equal(t, 5, w.HealthCheck.Retries)
	require.NotNil(t, w.HealthCheck.Probe)
	assert.Equal(t, types.ProbeHTTP, w.HealthCheck.Probe.Type)

	assert.Equal(t, 2, cfg.Workers[1].Priority)
}

func TestLoadTOML(t *testing.T) {
	cfg, err := Load(write(t, "fleet.toml", fleetTOML))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Coordinator.APIAddr)
	assert.Equal(t, 20*time.Second, cfg.Coordinator.ShutdownTimeout)
	assert.Equal(t, DefaultHealthInterval, cfg.Coordinator.HealthInterval)

	require.Len(t, cfg.Workers, 1)
	w := cfg.Workers[0]
	assert.Equal(t, "reporter", w.Name)
	assert.Equal(t, map[string]string{"REGION": "eu"}, w.Env)
	assert.Equal(t, time.Second, w.HealthCheck.Timeout)
	assert.Equal(t, 2, w.HealthCheck.Retries)
	require.NotNil(t, w.HealthCheck.Probe)
	assert.Equal(t, []string{"reporter", "--ping"}, w.HealthCheck.Probe.Command)
}

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse(nil, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIAddr, cfg.Coordinator.APIAddr)
	assert.Empty(t, cfg.Workers)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("coordinator:\n  api_adr: x\n"), FormatYAML)
	assert.Error(t, err)

	_, err = Parse([]byte("[coordinator]\napi_adr = \"x\"\n"), FormatTOML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_adr")
}

func TestValidateReportsAllProblems(t *testing.T) {
	src := `
coordinator:
  restart_delay: -1s
  log_level: loud
workers:
  - name: a
    command: a
  - name: a
    command: a
  - name: nocmd
  - name: badprobe
    command: x
    health_check:
      probe:
        type: grpc
`
	_, err := Parse([]byte(src), FormatYAML)
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{
		"restart_delay must not be negative",
		"log_level",
		`duplicate name "a"`,
		"command is required",
		"unsupported probe type",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestParseRejectsBadDuration(t *testing.T) {
	_, err := Parse([]byte("coordinator:\n  health_interval: soon\n"), FormatYAML)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, FormatTOML, formatOf("fleet.TOML"))
	assert.Equal(t, FormatYAML, formatOf("fleet.yml"))
	assert.Equal(t, FormatYAML, formatOf("fleet"))
}

func TestParseExpandsBracedReferencesOnly(t *testing.T) {
	t.Setenv("FOREMAN_TEST_TOKEN", "s3cret")
	t.Setenv("FILES_UNSET", "expanded")

	data := []byte(`
workers:
  - name: looper
    command: sh
    args: ["-c", "for f in $FILES_UNSET; do echo $f; done; echo $$ $1"]
    env:
      TOKEN: ${FOREMAN_TEST_TOKEN}
      PRICE: $5
`)
	cfg, err := Parse(data, FormatYAML)
	require.NoError(t, err)
	require.Len(t, cfg.Workers, 1)

	w := cfg.Workers[0]
	assert.Equal(t, []string{"-c", "for f in $FILES_UNSET; do echo $f; done; echo $$ $1"}, w.Args)
	assert.Equal(t, "s3cret", w.Env["TOKEN"])
	assert.Equal(t, "$5", w.Env["PRICE"])
}
