package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"voiced/internal/common/procutil"
)

// DefaultWarmupTimeout bounds the model load attempted before launch.
const DefaultWarmupTimeout = 10 * time.Minute

// WarmupStatus is the two-valued warm-up result.
type WarmupStatus string

const (
	WarmupSuccess WarmupStatus = "success"
	WarmupFailed  WarmupStatus = "failed"
)

// WarmupOutcome is handed to the launcher explicitly.
type WarmupOutcome struct {
	Status   WarmupStatus
	Reason   string
	Duration time.Duration
}

// OK reports a successful warm-up.
func (o WarmupOutcome) OK() bool { return o.Status == WarmupSuccess }

// Warmer loads the model once so weights are cached before the service
// takes traffic.
type Warmer interface {
	Warmup(ctx context.Context, sel DeviceSelection) error
}

// WarmerFunc adapts a function to Warmer.
type WarmerFunc func(ctx context.Context, sel DeviceSelection) error

func (f WarmerFunc) Warmup(ctx context.Context, sel DeviceSelection) error { return f(ctx, sel) }

// Supervisor runs a Warmer and converts every failure, panics included,
// into a failed outcome.
type Supervisor struct {
	Warmer  Warmer
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Run never returns an error; the outcome carries the reason.
func (s Supervisor) Run(ctx context.Context, sel DeviceSelection) (out WarmupOutcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = WarmupOutcome{Status: WarmupFailed, Reason: fmt.Sprintf("panic: %v", r)}
		}
		out.Duration = time.Since(start)
		s.log(out)
	}()
	if s.Warmer == nil {
		return WarmupOutcome{Status: WarmupFailed, Reason: "no warm-up configured"}
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultWarmupTimeout
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.Warmer.Warmup(wctx, sel); err != nil {
		if errors.Is(wctx.Err(), context.DeadlineExceeded) {
			return WarmupOutcome{Status: WarmupFailed, Reason: fmt.Sprintf("timed out after %s: %v", timeout, err)}
		}
		return WarmupOutcome{Status: WarmupFailed, Reason: err.Error()}
	}
	return WarmupOutcome{Status: WarmupSuccess}
}

func (s Supervisor) log(out WarmupOutcome) {
	if out.OK() {
		s.Logger.Info().Str("warmup", string(out.Status)).Dur("duration", out.Duration).Msg("model warm-up finished")
		return
	}
	s.Logger.Error().Str("warmup", string(out.Status)).Str("reason", out.Reason).Dur("duration", out.Duration).
		Msg("model warm-up failed; the service will load the model on first use")
}

// CommandWarmer runs an external command that loads the model. The selected
// device is exported the same way the launcher exports it.
type CommandWarmer struct {
	Argv   []string
	Env    map[string]string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

func (w CommandWarmer) Warmup(ctx context.Context, sel DeviceSelection) error {
	c, err := procutil.Argv(w.Argv)
	if err != nil {
		return err
	}
	c.Env = sel.Env()
	for k, v := range w.Env {
		c.Env[k] = v
	}
	c.Dir = w.Dir
	c.Stdout = w.Stdout
	tail := &procutil.TailBuffer{Max: 2048}
	if w.Stderr != nil {
		c.Stderr = io.MultiWriter(w.Stderr, tail)
	} else {
		c.Stderr = tail
	}
	c.WaitDelay = 2 * time.Second
	if err := c.Build(ctx).Run(); err != nil {
		code := procutil.ExitCode(err)
		if msg := tail.String(); msg != "" {
			return fmt.Errorf("%s exited with code %d: %s", c.Path, code, lastLine(msg))
		}
		return fmt.Errorf("%s exited with code %d: %w", c.Path, code, err)
	}
	return nil
}

// lastLine keeps the final line of a traceback, which names the exception.
func lastLine(s string) string {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '\n' {
			return s[i+1:]
		}
	}
	return s
}
