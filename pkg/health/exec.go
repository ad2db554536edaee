package health

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/cuemby/foreman/pkg/types"
)

// maxOutput caps how much probe output ends up in a result message
const maxOutput = 100

// ExecChecker runs a host command; exit code 0 is healthy
type ExecChecker struct {
	Command []string
	Timeout time.Duration
	Dir     string // empty inherits the coordinator's
}

// NewExecChecker creates an exec checker for command
func NewExecChecker(command []string) *ExecChecker {
	return &ExecChecker{Command: command, Timeout: DefaultProbeTimeout}
}

// Check runs the command once
func (e *ExecChecker) Check(ctx context.Context) Result {
	start := time.Now()
	if len(e.Command) == 0 {
		return finish(start, false, "no command specified")
	}

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.Command[0], e.Command[1:]...)
	cmd.Dir = e.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	line := strings.Join(e.Command, " ")
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return finish(start, false, "Command: %s, Error: %v, Stderr: %s", line, err, truncate(stderr.String()))
		}
		return finish(start, false, "Command: %s, Error: %v", line, err)
	}

	if stdout.Len() > 0 {
		return finish(start, true, "Command: %s, Output: %s", line, truncate(stdout.String()))
	}
	return finish(start, true, "Command: %s", line)
}

// Type returns the probe type
func (e *ExecChecker) Type() types.ProbeType {
	return types.ProbeExec
}

// WithTimeout bounds a single run
func (e *ExecChecker) WithTimeout(timeout time.Duration) *ExecChecker {
	e.Timeout = timeout
	return e
}

// WithDir sets the working directory
func (e *ExecChecker) WithDir(dir string) *ExecChecker {
	e.Dir = dir
	return e
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxOutput {
		return s[:maxOutput] + "..."
	}
	return s
}
