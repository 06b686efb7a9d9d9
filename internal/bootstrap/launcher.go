package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"voiced/internal/common/procutil"
)

// DefaultStopTimeout is how long a child gets between SIGTERM and SIGKILL
// once the controller context is done.
const DefaultStopTimeout = 10 * time.Second

// ServiceSpec describes the long-running service. Argv may contain
// {host}, {port}, {log_level} and {device} placeholders.
type ServiceSpec struct {
	Argv      []string
	Host      string
	Port      int
	LogLevel  string
	CachePath string
	Dir       string
	Env       map[string]string
	Stdin     io.Reader
	Stdout    io.Writer
	Stderr    io.Writer
}

// Command renders the child process for a device selection and warm-up
// outcome.
func (s ServiceSpec) Command(sel DeviceSelection, warm WarmupOutcome) (procutil.Cmd, error) {
	level := ServiceLogLevel(s.LogLevel)
	r := strings.NewReplacer(
		"{host}", s.Host,
		"{port}", strconv.Itoa(s.Port),
		"{log_level}", level,
		"{device}", string(sel.Device),
	)
	argv := make([]string, len(s.Argv))
	for i, a := range s.Argv {
		argv[i] = r.Replace(a)
	}
	c, err := procutil.Argv(argv)
	if err != nil {
		return procutil.Cmd{}, err
	}
	env := sel.Env()
	env["HOST"] = s.Host
	env["PORT"] = strconv.Itoa(s.Port)
	env["LOG_LEVEL"] = level
	env["VOICED_WARMUP"] = string(warm.Status)
	if s.CachePath != "" {
		env["TTS_CACHE_PATH"] = s.CachePath
	}
	for k, v := range s.Env {
		env[k] = v
	}
	c.Env = env
	c.Dir = s.Dir
	c.Stdin, c.Stdout, c.Stderr = s.Stdin, s.Stdout, s.Stderr
	return c, nil
}

// ServiceLogLevel maps LOG_LEVEL onto the names uvicorn accepts.
func ServiceLogLevel(s string) string {
	switch l := strings.ToLower(strings.TrimSpace(s)); l {
	case "":
		return "info"
	case "warn":
		return "warning"
	case "err":
		return "error"
	case "fatal", "off", "disabled":
		return "critical"
	default:
		return l
	}
}

// Launcher runs the service until it exits and reports its exit code.
type Launcher interface {
	Launch(ctx context.Context, spec ServiceSpec, sel DeviceSelection, warm WarmupOutcome) (int, error)
}

// ProcessLauncher starts the service as a child process. SIGINT and SIGTERM
// received by voiced are forwarded to the child; when ctx is done the child
// gets SIGTERM and, after StopTimeout, SIGKILL.
type ProcessLauncher struct {
	Logger      zerolog.Logger
	StopTimeout time.Duration
	// OnStart is called with the child pid once it is running.
	OnStart func(pid int)
	// Signals overrides the forwarded set.
	Signals []os.Signal
}

func (l ProcessLauncher) Launch(ctx context.Context, spec ServiceSpec, sel DeviceSelection, warm WarmupOutcome) (int, error) {
	c, err := spec.Command(sel, warm)
	if err != nil {
		return 1, err
	}
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}
	if c.Stdin == nil {
		c.Stdin = os.Stdin
	}
	c.WaitDelay = l.StopTimeout
	if c.WaitDelay <= 0 {
		c.WaitDelay = DefaultStopTimeout
	}
	cmd := c.Build(ctx)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }

	sigs := l.Signals
	if len(sigs) == 0 {
		sigs = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, sigs...)
	defer signal.Stop(sigCh)

	if err := cmd.Start(); err != nil {
		return procutil.ExitCode(err), fmt.Errorf("start %s: %w", c.Path, err)
	}
	pid := cmd.Process.Pid
	l.Logger.Info().Str("command", c.String()).Int("pid", pid).
		Str("device", string(sel.Device)).Str("warmup", string(warm.Status)).
		Msg("service launched")
	if l.OnStart != nil {
		l.OnStart(pid)
	}

	done := make(chan struct{})
	forwarding := make(chan struct{})
	go func() {
		defer close(forwarding)
		for {
			select {
			case s := <-sigCh:
				l.Logger.Info().Str("signal", s.String()).Int("pid", pid).Msg("forwarding signal to service")
				_ = cmd.Process.Signal(s)
			case <-done:
				return
			}
		}
	}()
	err = cmd.Wait()
	close(done)
	<-forwarding

	code := procutil.ExitCode(err)
	if cmd.ProcessState != nil && cmd.ProcessState.Success() {
		code = 0
	}
	l.Logger.Info().Int("pid", pid).Int("exit_code", code).Msg("service exited")
	return code, nil
}
