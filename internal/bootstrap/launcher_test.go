package bootstrap

import (
	"bytes"
	"context"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"voiced/internal/common/procutil"
)

var okWarm = WarmupOutcome{Status: WarmupSuccess}

func TestServiceSpec_Command(t *testing.T) {
	spec := ServiceSpec{
		Argv:      []string{"uvicorn", "app:app", "--host", "{host}", "--port", "{port}", "--log-level", "{log_level}"},
		Host:      "0.0.0.0",
		Port:      8000,
		LogLevel:  "WARN",
		CachePath: "/app/cache",
		Env:       map[string]string{"EXTRA": "1"},
	}
	c, err := spec.Command(DeviceSelection{Device: DeviceCPU}, WarmupOutcome{Status: WarmupFailed})
	require.NoError(t, err)
	require.Equal(t, "uvicorn app:app --host 0.0.0.0 --port 8000 --log-level warning", c.String())
	require.Equal(t, "8000", c.Env["PORT"])
	require.Equal(t, "0.0.0.0", c.Env["HOST"])
	require.Equal(t, "warning", c.Env["LOG_LEVEL"])
	require.Equal(t, "cpu", c.Env["DEVICE"])
	require.Equal(t, "cpu", c.Env["TORCH_DEVICE"])
	require.Equal(t, "/app/cache", c.Env["TTS_CACHE_PATH"])
	require.Equal(t, "failed", c.Env["VOICED_WARMUP"])
	require.Equal(t, "1", c.Env["EXTRA"])
	v, ok := c.Env["CUDA_VISIBLE_DEVICES"]
	require.True(t, ok)
	require.Empty(t, v)

	c, err = ServiceSpec{Argv: []string{"serve", "--device={device}"}}.Command(DeviceSelection{Device: DeviceAccelerated}, okWarm)
	require.NoError(t, err)
	require.Equal(t, []string{"--device=accelerated"}, c.Args)
	require.Equal(t, "cuda", c.Env["TORCH_DEVICE"])

	_, err = ServiceSpec{}.Command(cpuSel, okWarm)
	require.Error(t, err)
}

func TestServiceLogLevel(t *testing.T) {
	cases := map[string]string{"": "info", "debug": "debug", "warn": "warning", "ERROR": "error", "off": "critical", "critical": "critical", "trace": "trace"}
	for in, want := range cases {
		require.Equal(t, want, ServiceLogLevel(in), in)
	}
}

func launcher() ProcessLauncher {
	return ProcessLauncher{Logger: zerolog.Nop(), StopTimeout: 2 * time.Second}
}

func TestProcessLauncher_ExitCodePassesThrough(t *testing.T) {
	for _, code := range []int{0, 3, 42} {
		spec := ServiceSpec{Argv: helperArgv("exit", strconv.Itoa(code)), Env: helperEnvMap(), Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
		got, err := launcher().Launch(context.Background(), spec, cpuSel, okWarm)
		require.NoError(t, err)
		require.Equal(t, code, got)
	}
}

func TestProcessLauncher_ExportsSelection(t *testing.T) {
	var out bytes.Buffer
	spec := ServiceSpec{
		Argv:      helperArgv("env", "DEVICE", "TORCH_DEVICE", "CUDA_VISIBLE_DEVICES", "PORT", "VOICED_WARMUP", "TTS_CACHE_PATH"),
		Port:      8123,
		Host:      "127.0.0.1",
		CachePath: "/tmp/cache",
		Env:       helperEnvMap(),
		Stdout:    &out,
		Stderr:    &bytes.Buffer{},
	}
	code, err := launcher().Launch(context.Background(), spec, cpuSel, WarmupOutcome{Status: WarmupFailed})
	require.NoError(t, err)
	require.Equal(t, 0, code)
	got := out.String()
	for _, want := range []string{"DEVICE=cpu", "TORCH_DEVICE=cpu", "CUDA_VISIBLE_DEVICES=\n", "PORT=8123", "VOICED_WARMUP=failed", "TTS_CACHE_PATH=/tmp/cache"} {
		require.Contains(t, got, want)
	}
}

func TestProcessLauncher_ContextCancelTerminatesChild(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("signals")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var pid int
	l := launcher()
	l.OnStart = func(p int) {
		pid = p
		go func() {
			time.Sleep(100 * time.Millisecond)
			cancel()
		}()
	}
	spec := ServiceSpec{Argv: helperArgv("sleep"), Env: helperEnvMap(), Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
	start := time.Now()
	code, err := l.Launch(ctx, spec, cpuSel, okWarm)
	require.NoError(t, err)
	require.NotZero(t, pid)
	require.Equal(t, 128+15, code)
	require.Less(t, time.Since(start), 30*time.Second)
}

func TestProcessLauncher_CommandNotFound(t *testing.T) {
	spec := ServiceSpec{Argv: []string{filepath.Join(t.TempDir(), "no-such-server")}}
	code, err := launcher().Launch(context.Background(), spec, cpuSel, okWarm)
	require.Error(t, err)
	require.Equal(t, procutil.ExitCodeNotFound, code)
	require.True(t, strings.Contains(err.Error(), "no-such-server"))
}
