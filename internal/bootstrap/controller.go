package bootstrap

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voiced/pkg/types"
)

// Controller runs the bootstrap stages once and then supervises the service.
type Controller struct {
	opts    Options
	runID   string
	log     zerolog.Logger
	started atomic.Bool

	mu     sync.RWMutex
	report Report
}

// Report is a point-in-time view of the bootstrap run.
type Report struct {
	RunID     string
	Stage     Stage
	Err       error
	Device    *DeviceSelection
	Memory    *MemoryAdvisory
	Warmup    *WarmupOutcome
	Durations map[Stage]time.Duration
	Dirs      []string
	PID       int
	ExitCode  *int
	StartedAt time.Time
}

// New constructs a Controller from Options, applying defaults.
func New(opts Options) *Controller {
	opts = opts.withDefaults()
	id := uuid.NewString()
	c := &Controller{
		opts:  opts,
		runID: id,
		log:   opts.Logger.With().Str("run_id", id).Logger(),
	}
	c.report = Report{RunID: id, Durations: make(map[Stage]time.Duration), StartedAt: time.Now()}
	return c
}

// RunID identifies this run in logs, events and /status.
func (c *Controller) RunID() string { return c.runID }

// Run executes every stage in order and returns the process exit code.
// A non-nil error is a fatal StageError (exit code ExitFatal) or
// ErrAlreadyRun; otherwise the code is the service's own exit code.
func (c *Controller) Run(ctx context.Context) (int, error) {
	if !c.started.CompareAndSwap(false, true) {
		return ExitFatal, ErrAlreadyRun
	}
	c.log.Info().Str("data_root", c.opts.DataRoot).Str("device_override", string(c.opts.DeviceOverride)).Msg("bootstrap starting")

	if err := c.stage(StageDropPrivilege, func(log zerolog.Logger) error {
		return c.opts.DropPrivilege(log)
	}); err != nil {
		return ExitFatal, err
	}

	if err := c.stage(StageProvisionDirs, func(log zerolog.Logger) error {
		p := Provisioner{Root: c.opts.DataRoot, CachePath: c.opts.CachePath, Logger: log}
		dirs, err := p.Provision()
		if err != nil {
			return err
		}
		c.update(func(r *Report) { r.Dirs = dirs })
		return nil
	}); err != nil {
		return ExitFatal, err
	}

	var sel DeviceSelection
	_ = c.stage(StageDetectDevice, func(log zerolog.Logger) error {
		d := Detector{Override: c.opts.DeviceOverride, Probe: c.opts.Probe, Timeout: c.opts.ProbeTimeout, Logger: log}
		sel = d.Detect(ctx)
		observeDevice(sel)
		c.update(func(r *Report) { r.Device = &sel })
		return nil
	})

	_ = c.stage(StageAuditMemory, func(log zerolog.Logger) error {
		adv := c.auditMemory(log)
		observeMemory(adv)
		c.update(func(r *Report) { r.Memory = &adv })
		return nil
	})

	var warm WarmupOutcome
	_ = c.stage(StageWarmup, func(log zerolog.Logger) error {
		s := Supervisor{Warmer: c.opts.Warmer, Timeout: c.opts.WarmupTimeout, Logger: log}
		warm = s.Run(ctx, sel)
		observeWarmup(warm)
		c.update(func(r *Report) { r.Warmup = &warm })
		return nil
	})

	code := 0
	_ = c.stage(StageLaunch, func(log zerolog.Logger) error {
		l := c.opts.Launcher
		if l == nil {
			l = ProcessLauncher{Logger: log, OnStart: c.setPID}
		}
		serviceExitCode.Set(-1)
		var err error
		code, err = l.Launch(ctx, c.opts.Service, sel, warm)
		if err != nil {
			log.Error().Err(err).Int("exit_code", code).Msg("service could not be started")
		}
		serviceExitCode.Set(float64(code))
		c.update(func(r *Report) { r.ExitCode = &code })
		return nil
	})
	return code, nil
}

func (c *Controller) stage(s Stage, fn func(zerolog.Logger) error) error {
	log := c.log.With().Str("stage", string(s)).Logger()
	c.update(func(r *Report) { r.Stage = s })
	c.opts.Publisher.Publish(Event{Name: EventStageStart, RunID: c.runID, Stage: s})
	start := time.Now()
	err := fn(log)
	d := time.Since(start)
	observeStage(s, d)
	c.update(func(r *Report) { r.Durations[s] = d })
	if err != nil {
		observeFatal(s)
		c.update(func(r *Report) { r.Err = err })
		c.opts.Publisher.Publish(Event{Name: EventStageFailed, RunID: c.runID, Stage: s, Fields: map[string]any{"error": err.Error()}})
		log.Error().Err(err).Msg("fatal bootstrap error")
		return err
	}
	c.opts.Publisher.Publish(Event{Name: EventStageDone, RunID: c.runID, Stage: s, Fields: map[string]any{"duration_ms": d.Milliseconds()}})
	return nil
}

func (c *Controller) auditMemory(log zerolog.Logger) MemoryAdvisory {
	total, err := c.opts.Memory()
	if err != nil {
		log.Warn().Err(err).Msg("could not measure system memory; skipping memory check")
		return UnknownMemory(c.opts.MemoryThresholdGB)
	}
	adv := AuditMemory(total, c.opts.MemoryThresholdGB)
	if !adv.Sufficient {
		log.Warn().Float64("total_gb", adv.TotalGB).Float64("threshold_gb", adv.ThresholdGB).
			Msg("low system memory; model loading may be slow or fail")
		return adv
	}
	log.Info().Float64("total_gb", adv.TotalGB).Msg("memory check passed")
	return adv
}

func (c *Controller) setPID(pid int) { c.update(func(r *Report) { r.PID = pid }) }

func (c *Controller) update(fn func(*Report)) {
	c.mu.Lock()
	fn(&c.report)
	c.mu.Unlock()
}

// Snapshot returns a copy of the current report.
func (c *Controller) Snapshot() Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r := c.report
	r.Durations = make(map[Stage]time.Duration, len(c.report.Durations))
	for k, v := range c.report.Durations {
		r.Durations[k] = v
	}
	return r
}

// Status renders the current report for the status server, with the
// recorded events when the publisher retains them.
func (c *Controller) Status() types.StatusResponse {
	st := c.Snapshot().Status(time.Now())
	if src, ok := c.opts.Publisher.(EventSource); ok {
		st.Events = EventStatuses(src.Events())
	}
	return st
}

// Status converts the report into its JSON representation.
func (r Report) Status(now time.Time) types.StatusResponse {
	out := types.StatusResponse{
		RunID:            r.RunID,
		Stage:            string(r.Stage),
		StageDurationsMS: make(map[string]int64, len(r.Durations)),
		ServicePID:       r.PID,
		ServiceExitCode:  r.ExitCode,
		ServerTimeUnix:   now.Unix(),
	}
	if !r.StartedAt.IsZero() {
		out.UptimeSeconds = int64(now.Sub(r.StartedAt).Seconds())
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	for s, d := range r.Durations {
		out.StageDurationsMS[string(s)] = d.Milliseconds()
	}
	if r.Device != nil {
		ds := &types.DeviceStatus{
			Device:  string(r.Device.Device),
			Runtime: r.Device.Device.TorchName(),
			Source:  r.Device.Source,
			Reason:  r.Device.Reason,
		}
		for _, g := range r.Device.GPUs {
			ds.GPUs = append(ds.GPUs, types.GPUInfo{Index: g.Index, Name: g.Name, MemoryMB: g.MemoryMB})
		}
		out.Device = ds
	}
	if r.Memory != nil {
		out.Memory = &types.MemoryStatus{Known: r.Memory.Known, TotalGB: r.Memory.TotalGB, ThresholdGB: r.Memory.ThresholdGB, Sufficient: r.Memory.Sufficient}
	}
	if r.Warmup != nil {
		out.Warmup = &types.WarmupStatus{Status: string(r.Warmup.Status), Reason: r.Warmup.Reason, DurationMS: r.Warmup.Duration.Milliseconds()}
	}
	return out
}
