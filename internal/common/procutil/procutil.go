// Package procutil builds and inspects child processes for the bootstrap
// stages that shell out (hardware probe, warm-up, service launch).
package procutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ExitCodeNotFound mirrors the shell convention for "command not found".
const ExitCodeNotFound = 127

// Cmd describes a child process. Env entries are added on top of the
// inherited environment and win over inherited keys.
type Cmd struct {
	Path   string
	Args   []string
	Env    map[string]string
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// WaitDelay bounds how long Wait blocks on I/O after the process exits
	// or the context is done.
	WaitDelay time.Duration
}

// Argv splits a command line slice into a Cmd. The slice must be non-empty.
func Argv(argv []string) (Cmd, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return Cmd{}, errors.New("empty command")
	}
	return Cmd{Path: argv[0], Args: append([]string(nil), argv[1:]...)}, nil
}

// Build resolves the command into an *exec.Cmd bound to ctx.
func (c Cmd) Build(ctx context.Context) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	if c.Dir != "" {
		cmd.Dir = c.Dir
	}
	cmd.Env = MergeEnv(os.Environ(), c.Env)
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	if c.WaitDelay > 0 {
		cmd.WaitDelay = c.WaitDelay
	}
	return cmd
}

// String renders the command for logs.
func (c Cmd) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// MergeEnv appends extra KEY=VALUE pairs to base in a stable order.
// exec.Cmd keeps the last value for duplicate keys, so extras override base.
func MergeEnv(base []string, extra map[string]string) []string {
	out := append([]string(nil), base...)
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, extra[k]))
	}
	return out
}

// LookupEnv returns the last value of key in env, as exec.Cmd would use it.
func LookupEnv(env []string, key string) (string, bool) {
	prefix := key + "="
	val, ok := "", false
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			val, ok = kv[len(prefix):], true
		}
	}
	return val, ok
}

// ExitCode maps the error returned by Wait/Run to a process exit code.
// A child killed by a signal reports 128+signal, like a POSIX shell.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		if code := ee.ExitCode(); code >= 0 {
			return code
		}
		return 1
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return ExitCodeNotFound
	}
	return 1
}

// TailBuffer is an io.Writer that keeps only the last Max bytes written.
// It is safe for concurrent use.
type TailBuffer struct {
	Max int

	mu  sync.Mutex
	buf []byte
}

func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	limit := t.Max
	if limit <= 0 {
		limit = 4096
	}
	t.buf = append(t.buf, p...)
	if len(t.buf) > limit {
		t.buf = append([]byte(nil), t.buf[len(t.buf)-limit:]...)
	}
	return len(p), nil
}

// String returns the retained tail with surrounding whitespace trimmed.
func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
