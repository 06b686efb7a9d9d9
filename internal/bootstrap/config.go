package bootstrap

import (
	"time"

	"github.com/rs/zerolog"
)

// ExitFatal is the process exit code for a fatal stage error.
const ExitFatal = 1

// Options encapsulates all tunables and collaborators for a Controller.
// Nil collaborators are replaced by the production implementations in New.
type Options struct {
	DataRoot          string
	CachePath         string
	ServiceUser       string
	DeviceOverride    Device
	ProbeTimeout      time.Duration
	MemoryThresholdGB float64
	WarmupTimeout     time.Duration
	WarmupCommand     []string
	Service           ServiceSpec

	Logger    zerolog.Logger
	Publisher EventPublisher

	// DropPrivilege defaults to a PrivilegeDropper for ServiceUser.
	DropPrivilege func(log zerolog.Logger) error
	// Probe defaults to NvidiaProbe("").
	Probe ProbeFunc
	// Memory defaults to SystemMemory.
	Memory MemoryReader
	// Warmer defaults to a CommandWarmer running WarmupCommand.
	Warmer Warmer
	// Launcher defaults to a ProcessLauncher.
	Launcher Launcher
}

func (o Options) withDefaults() Options {
	if o.ServiceUser == "" {
		o.ServiceUser = DefaultServiceUser
	}
	if o.DeviceOverride == "" {
		o.DeviceOverride = DeviceAuto
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = DefaultProbeTimeout
	}
	if o.MemoryThresholdGB <= 0 {
		o.MemoryThresholdGB = DefaultMemoryThresholdGB
	}
	if o.WarmupTimeout <= 0 {
		o.WarmupTimeout = DefaultWarmupTimeout
	}
	if o.Publisher == nil {
		o.Publisher = noopPublisher{}
	}
	if o.DropPrivilege == nil {
		user := o.ServiceUser
		o.DropPrivilege = func(log zerolog.Logger) error { return NewPrivilegeDropper(user, log).Drop() }
	}
	if o.Probe == nil {
		o.Probe = NvidiaProbe("")
	}
	if o.Memory == nil {
		o.Memory = SystemMemory
	}
	if o.Warmer == nil && len(o.WarmupCommand) > 0 {
		env := map[string]string{}
		if o.CachePath != "" {
			env["TTS_CACHE_PATH"] = o.CachePath
		}
		o.Warmer = CommandWarmer{Argv: o.WarmupCommand, Env: env, Dir: o.Service.Dir, Stdout: o.Service.Stderr, Stderr: o.Service.Stderr}
	}
	return o
}
