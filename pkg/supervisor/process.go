package supervisor

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cuemby/foreman/pkg/types"
	"github.com/rs/zerolog"
)

// ioDrainDelay bounds how long Wait keeps copying output after the child
// exits. Grandchildren that inherit stdout must not delay exit detection.
const ioDrainDelay = 2 * time.Second

// Process is one spawned worker process
type Process struct {
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time

	done    chan struct{}
	waitErr error
	state   *os.ProcessState
}

// startProcess spawns the worker described by def. Output lines are
// appended to logs and forwarded to logger at debug level.
func startProcess(def *types.WorkerDefinition, logs *LogBuffer, logger zerolog.Logger) (*Process, error) {
	cmd := exec.Command(def.Command, def.Args...)
	cmd.Env = mergeEnv(os.Environ(), def.Env)
	cmd.Dir = def.WorkDir
	cmd.Stdout = &lineWriter{stream: "stdout", logs: logs, logger: logger}
	cmd.Stderr = &lineWriter{stream: "stderr", logs: logs, logger: logger}
	cmd.WaitDelay = ioDrainDelay

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	p := &Process{
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}

	go func() {
		err := cmd.Wait()
		p.waitErr = err
		p.state = cmd.ProcessState
		close(p.done)
	}()

	return p, nil
}

// PID returns the OS process id
func (p *Process) PID() int {
	return p.pid
}

// StartedAt returns when the process was spawned
func (p *Process) StartedAt() time.Time {
	return p.startedAt
}

// Done is closed once the process has exited and been reaped
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the process has already exited
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Terminate sends SIGTERM. Signalling an already-exited process is not an error.
func (p *Process) Terminate() error {
	return p.signal(syscall.SIGTERM)
}

// Kill sends SIGKILL
func (p *Process) Kill() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill process %d: %w", p.pid, err)
	}
	return nil
}

func (p *Process) signal(sig os.Signal) error {
	if p.Exited() {
		return nil
	}
	if err := p.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to send %v to process %d: %w", sig, p.pid, err)
	}
	return nil
}

// RuntimeError returns the wait error if the process failed for a reason
// other than a normal exit or signal. Only valid after Done is closed.
func (p *Process) RuntimeError() error {
	if p.waitErr == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(p.waitErr, &exitErr) {
		return nil
	}
	// WaitDelay expiry only means output pipes were force-closed
	if errors.Is(p.waitErr, exec.ErrWaitDelay) {
		return nil
	}
	return p.waitErr
}

// ExitSummary describes how the process ended. Only valid after Done is closed.
func (p *Process) ExitSummary() string {
	if p.state == nil {
		if p.waitErr != nil {
			return fmt.Sprintf("Process wait failed: %v", p.waitErr)
		}
		return "Process exited"
	}
	if ws, ok := p.state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return fmt.Sprintf("Process exited with code null, signal %s", signalName(ws.Signal()))
	}
	return fmt.Sprintf("Process exited with code %d, signal null", p.state.ExitCode())
}

func signalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGKILL:
		return "SIGKILL"
	case syscall.SIGINT:
		return "SIGINT"
	default:
		return sig.String()
	}
}

// mergeEnv overlays overrides on top of the host environment.
// Definition keys win; the result is sorted for stable launches.
func mergeEnv(host []string, overrides map[string]string) []string {
	env := make(map[string]string, len(host)+len(overrides))
	for _, kv := range host {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env[k] = v
	}
	for k, v := range overrides {
		env[k] = v
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// lineWriter splits process output into lines
type lineWriter struct {
	stream string
	logs   *LogBuffer
	logger zerolog.Logger

	mu      sync.Mutex
	partial []byte
}

func (w *lineWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial = append(w.partial, b...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(w.partial[:i]), "\r")
		w.partial = w.partial[i+1:]
		w.emit(line)
	}
	// Guard against a child that never writes a newline
	if len(w.partial) > 64*1024 {
		w.emit(string(w.partial))
		w.partial = nil
	}
	return len(b), nil
}

func (w *lineWriter) emit(line string) {
	w.logs.Append(w.stream, line)
	w.logger.Debug().Str("stream", w.stream).Msg(line)
}
