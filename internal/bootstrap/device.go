package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DefaultProbeTimeout bounds the accelerator utility.
const DefaultProbeTimeout = 5 * time.Second

// ProbeResult is what the accelerator utility reported. Ran is false when
// the utility could not be executed at all.
type ProbeResult struct {
	Ran      bool
	ExitCode int
	GPUs     []GPU
	// Output holds the tail of stderr for diagnostics.
	Output string
}

// ProbeFunc queries the accelerator utility. An error means the utility is
// unreachable (missing, timed out, not executable).
type ProbeFunc func(ctx context.Context) (ProbeResult, error)

// SelectDevice applies the override and the probe tie-break:
//  1. utility unreachable: cpu
//  2. utility ran but listed no responsive device: cpu
//  3. at least one responsive device: accelerated
//
// An accelerated override wins even when the probe disagrees; Detector logs
// the mismatch.
func SelectDevice(override Device, res ProbeResult, probeErr error) DeviceSelection {
	switch override {
	case DeviceCPU:
		return DeviceSelection{Device: DeviceCPU, Source: SourceOverride, Reason: "DEVICE=cpu"}
	case DeviceAccelerated:
		return DeviceSelection{Device: DeviceAccelerated, Source: SourceOverride, Reason: "DEVICE=accelerated", GPUs: res.GPUs}
	}
	switch {
	case probeErr != nil:
		return DeviceSelection{Device: DeviceCPU, Source: SourceProbe, Reason: fmt.Sprintf("accelerator utility unreachable: %v", probeErr)}
	case !res.Ran:
		return DeviceSelection{Device: DeviceCPU, Source: SourceProbe, Reason: "accelerator utility did not run"}
	case res.ExitCode != 0:
		return DeviceSelection{Device: DeviceCPU, Source: SourceProbe, Reason: fmt.Sprintf("accelerator utility exited with code %d", res.ExitCode)}
	case len(res.GPUs) == 0:
		return DeviceSelection{Device: DeviceCPU, Source: SourceProbe, Reason: "no responsive accelerator listed"}
	default:
		return DeviceSelection{Device: DeviceAccelerated, Source: SourceProbe, Reason: fmt.Sprintf("%d responsive accelerator(s): %s", len(res.GPUs), res.GPUs[0].Name), GPUs: res.GPUs}
	}
}

// Detector runs the probe once and logs the selection.
type Detector struct {
	Override Device
	Probe    ProbeFunc
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// Detect never fails: every problem resolves to cpu.
func (d Detector) Detect(ctx context.Context) DeviceSelection {
	if d.Override == DeviceCPU {
		sel := SelectDevice(DeviceCPU, ProbeResult{}, nil)
		d.log(sel)
		return sel
	}
	res, err := d.probe(ctx)
	sel := SelectDevice(d.Override, res, err)
	if d.Override == DeviceAccelerated {
		if probed := SelectDevice(DeviceAuto, res, err); !probed.Accelerated() {
			d.Logger.Warn().Str("probe_reason", probed.Reason).Msg("DEVICE=accelerated but no accelerator was detected")
		}
	}
	d.log(sel)
	return sel
}

func (d Detector) probe(ctx context.Context) (ProbeResult, error) {
	if d.Probe == nil {
		return ProbeResult{}, fmt.Errorf("%w: no probe configured", ErrProbeUnavailable)
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res, err := d.Probe(pctx)
	if err == nil && pctx.Err() != nil {
		err = fmt.Errorf("%w: %v", ErrProbeUnavailable, pctx.Err())
	}
	return res, err
}

func (d Detector) log(sel DeviceSelection) {
	d.Logger.Info().
		Str("device", string(sel.Device)).
		Str("reason", sel.Reason).
		Str("source", sel.Source).
		Int("gpus", len(sel.GPUs)).
		Msg("device selected")
}
