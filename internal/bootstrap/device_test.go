package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseDevice(t *testing.T) {
	cases := map[string]Device{"": DeviceAuto, "AUTO": DeviceAuto, "cpu": DeviceCPU, "cuda": DeviceAccelerated, "gpu": DeviceAccelerated, " accelerated ": DeviceAccelerated}
	for in, want := range cases {
		got, err := ParseDevice(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseDevice("tpu")
	require.Error(t, err)
	require.Equal(t, "cuda", DeviceAccelerated.TorchName())
	require.Equal(t, "cpu", DeviceCPU.TorchName())
}

func TestSelectDevice_TieBreak(t *testing.T) {
	unreachable := fmt.Errorf("%w: exec: \"nvidia-smi\": executable file not found in $PATH", ErrProbeUnavailable)
	gpu := []GPU{{Index: 0, Name: "NVIDIA A10G", MemoryMB: 23028}}
	cases := []struct {
		name     string
		override Device
		res      ProbeResult
		err      error
		want     Device
		source   string
	}{
		{"utility missing", DeviceAuto, ProbeResult{}, unreachable, DeviceCPU, SourceProbe},
		{"utility failed", DeviceAuto, ProbeResult{Ran: true, ExitCode: 9}, nil, DeviceCPU, SourceProbe},
		{"no rows", DeviceAuto, ProbeResult{Ran: true}, nil, DeviceCPU, SourceProbe},
		{"not run", DeviceAuto, ProbeResult{}, nil, DeviceCPU, SourceProbe},
		{"one device", DeviceAuto, ProbeResult{Ran: true, GPUs: gpu}, nil, DeviceAccelerated, SourceProbe},
		{"cpu override beats device", DeviceCPU, ProbeResult{Ran: true, GPUs: gpu}, nil, DeviceCPU, SourceOverride},
		{"accelerated override without device", DeviceAccelerated, ProbeResult{}, unreachable, DeviceAccelerated, SourceOverride},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sel := SelectDevice(tc.override, tc.res, tc.err)
			require.Equal(t, tc.want, sel.Device)
			require.Equal(t, tc.source, sel.Source)
			require.NotEmpty(t, sel.Reason)
		})
	}
}

func TestDeviceSelection_Env(t *testing.T) {
	cpu := DeviceSelection{Device: DeviceCPU}.Env()
	require.Equal(t, "cpu", cpu["TORCH_DEVICE"])
	v, ok := cpu["CUDA_VISIBLE_DEVICES"]
	require.True(t, ok)
	require.Empty(t, v)

	acc := DeviceSelection{Device: DeviceAccelerated}.Env()
	require.Equal(t, "cuda", acc["TORCH_DEVICE"])
	require.Equal(t, "accelerated", acc["DEVICE"])
	_, ok = acc["CUDA_VISIBLE_DEVICES"]
	require.False(t, ok)
}

func TestDetector_CPUOverrideSkipsProbe(t *testing.T) {
	called := false
	d := Detector{Override: DeviceCPU, Logger: zerolog.Nop(), Probe: func(context.Context) (ProbeResult, error) {
		called = true
		return ProbeResult{}, nil
	}}
	sel := d.Detect(context.Background())
	require.False(t, called)
	require.Equal(t, DeviceCPU, sel.Device)
}

func TestDetector_AcceleratedOverrideWarnsOnMismatch(t *testing.T) {
	var buf bytes.Buffer
	d := Detector{Override: DeviceAccelerated, Logger: zerolog.New(&buf), Probe: func(context.Context) (ProbeResult, error) {
		return ProbeResult{Ran: true, ExitCode: 9}, nil
	}}
	sel := d.Detect(context.Background())
	require.Equal(t, DeviceAccelerated, sel.Device)

	lines := logLines(t, &buf)
	require.Len(t, linesWithLevel(lines, "warn"), 1)
	info := findLine(lines, "device", "accelerated")
	require.NotNil(t, info)
	require.Equal(t, "info", info["level"])
}

func TestDetector_ProbeTimeoutFallsBackToCPU(t *testing.T) {
	d := Detector{Logger: zerolog.Nop(), Timeout: 20 * time.Millisecond, Probe: func(ctx context.Context) (ProbeResult, error) {
		<-ctx.Done()
		return ProbeResult{}, nil
	}}
	sel := d.Detect(context.Background())
	require.Equal(t, DeviceCPU, sel.Device)
	require.Contains(t, sel.Reason, "unreachable")
}

func TestDetector_NoProbe(t *testing.T) {
	sel := Detector{Logger: zerolog.Nop()}.Detect(context.Background())
	require.Equal(t, DeviceCPU, sel.Device)
}

func TestDetector_ProbeErrorIsNotFatal(t *testing.T) {
	d := Detector{Logger: zerolog.Nop(), Probe: func(context.Context) (ProbeResult, error) {
		return ProbeResult{}, errors.New("permission denied")
	}}
	sel := d.Detect(context.Background())
	require.Equal(t, DeviceCPU, sel.Device)
	require.Contains(t, sel.Reason, "permission denied")
}
