package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ExecutionResult is the outcome of one toolchain run.
//
// A non-zero ExitCode is a normal result, not an error: the caller decides
// what a failed compile means.
type ExecutionResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Success reports whether the process exited with status 0.
func (r *ExecutionResult) Success() bool {
	return r != nil && r.ExitCode == 0
}

// HostEnvAllowlist names the host variables a toolchain process inherits.
// Everything else in the host environment is invisible to it.
var HostEnvAllowlist = []string{
	"PATH",
	"HOME",
	"TMPDIR",
	"TMP",
	"TEMP",
	"SYSTEMROOT",
	"LOCALAPPDATA",
}

// Executor runs toolchain invocations as subprocesses.
//
// Stdout and stderr are drained by two goroutines into separate buffers so
// that neither pipe can fill and block the child. Both readers are joined
// before the process is reaped.
type Executor struct {
	// Stream, when set, receives a live copy of both output streams.
	Stream io.Writer
}

// NewExecutor creates an Executor. stream may be nil.
func NewExecutor(stream io.Writer) *Executor {
	return &Executor{Stream: stream}
}

// Run executes inv and waits for it to exit.
//
// There is no internal timeout. Cancelling ctx kills the whole process group.
//
// Errors (all ErrSpawn):
//   - the executable cannot be started
//   - the process was terminated by a signal
//   - ctx was cancelled or timed out
func (e *Executor) Run(ctx context.Context, inv Invocation) (*ExecutionResult, error) {
	if inv.Executable == "" {
		return nil, spawnError("no executable", nil)
	}

	cmd := exec.CommandContext(ctx, inv.Executable, inv.Args...)
	cmd.Dir = inv.WorkDir
	cmd.Env = BuildEnv(inv.Env)
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = 5 * time.Second

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, spawnError("stdout pipe", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, spawnError("stderr pipe", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, spawnError(fmt.Sprintf("starting %s", inv.Executable), err)
	}

	var stdout, stderr bytes.Buffer
	var live io.Writer
	if e != nil && e.Stream != nil {
		live = &lockedWriter{w: e.Stream}
	}

	var readers errgroup.Group
	readers.Go(func() error { return drain(&stdout, stdoutPipe, live) })
	readers.Go(func() error { return drain(&stderr, stderrPipe, live) })
	readErr := readers.Wait()

	waitErr := cmd.Wait()
	elapsed := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, spawnError(fmt.Sprintf("%s terminated", inv.Executable), ctxErr)
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, spawnError(fmt.Sprintf("waiting for %s", inv.Executable), waitErr)
		}
		exitCode = exitErr.ExitCode()
		if exitCode < 0 {
			// Killed by a signal rather than exiting.
			return nil, spawnError(fmt.Sprintf("%s terminated", inv.Executable), waitErr)
		}
	}
	if readErr != nil && !errors.Is(readErr, os.ErrClosed) {
		return nil, spawnError("reading toolchain output", readErr)
	}

	return &ExecutionResult{
		ExitCode: exitCode,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: elapsed,
	}, nil
}

func drain(buf *bytes.Buffer, r io.Reader, live io.Writer) error {
	var w io.Writer = buf
	if live != nil {
		w = io.MultiWriter(buf, live)
	}
	_, err := io.Copy(w, r)
	return err
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// BuildEnv constructs the child environment: allow-listed host variables
// that are set, then overrides. The result is sorted by key.
func BuildEnv(overrides map[string]string) []string {
	env := make(map[string]string, len(HostEnvAllowlist)+len(overrides))
	for _, key := range HostEnvAllowlist {
		if v, ok := os.LookupEnv(key); ok {
			env[key] = v
		}
	}
	for k, v := range overrides {
		env[k] = v
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
