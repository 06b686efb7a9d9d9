package types

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: upstream health check failed
	Error string `json:"error" example:"upstream health check failed"`
	// HTTP status code.
	// example: 503
	Code int `json:"code" example:"503"`
}

// GPUInfo describes one accelerator reported by the hardware probe.
type GPUInfo struct {
	// Index as reported by the management utility.
	// example: 0
	Index int `json:"index" example:"0"`
	// Marketing name of the device.
	// example: NVIDIA A10G
	Name string `json:"name" example:"NVIDIA A10G"`
	// Total device memory in MiB, 0 when unknown.
	// example: 23028
	MemoryMB int `json:"memory_mb,omitempty" example:"23028"`
}

// DeviceStatus is the effective compute device chosen at startup.
type DeviceStatus struct {
	// Effective device: cpu or accelerated.
	// example: accelerated
	Device string `json:"device" example:"accelerated"`
	// Device name understood by the model runtime (cpu, cuda).
	// example: cuda
	Runtime string `json:"runtime" example:"cuda"`
	// Whether the selection came from the probe or an override.
	// example: probe
	Source string `json:"source" example:"probe"`
	// Human readable rationale for the selection.
	// example: 1 responsive accelerator(s)
	Reason string `json:"reason" example:"1 responsive accelerator(s)"`
	// Accelerators seen by the probe.
	GPUs []GPUInfo `json:"gpus,omitempty"`
}

// MemoryStatus is the advisory memory audit result.
type MemoryStatus struct {
	// Whether total memory could be measured.
	Known bool `json:"known"`
	// Total system memory in GiB.
	// example: 15.5
	TotalGB float64 `json:"total_gb" example:"15.5"`
	// Advisory threshold in GiB.
	// example: 4
	ThresholdGB float64 `json:"threshold_gb" example:"4"`
	// False when the measured memory is below the threshold.
	Sufficient bool `json:"sufficient"`
}

// WarmupStatus is the outcome of the model warm-up stage.
type WarmupStatus struct {
	// success or failed.
	// example: success
	Status string `json:"status" example:"success"`
	// Failure reason, empty on success.
	Reason string `json:"reason,omitempty"`
	// Time spent warming up in milliseconds.
	// example: 41250
	DurationMS int64 `json:"duration_ms" example:"41250"`
}

// EventStatus is one bootstrap lifecycle event.
type EventStatus struct {
	// stage_start, stage_done or stage_failed.
	// example: stage_done
	Name string `json:"name" example:"stage_done"`
	// example: detect_device
	Stage string `json:"stage" example:"detect_device"`
	// Extra fields such as duration_ms or error.
	Fields map[string]any `json:"fields,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Identifier of this bootstrap run, also present in every log line.
	// example: 3f0c3a52-6b0e-4d39-9d3f-8a2b5e0d7c11
	RunID string `json:"run_id" example:"3f0c3a52-6b0e-4d39-9d3f-8a2b5e0d7c11"`
	// Current (or last entered) bootstrap stage.
	// example: launch
	Stage string `json:"stage" example:"launch"`
	// Set when a fatal stage error aborted startup.
	Error string `json:"error,omitempty"`
	// Device selection; nil until the detect stage completes.
	Device *DeviceStatus `json:"device,omitempty"`
	// Memory audit; nil until the audit stage completes.
	Memory *MemoryStatus `json:"memory,omitempty"`
	// Warm-up outcome; nil until the warm-up stage completes.
	Warmup *WarmupStatus `json:"warmup,omitempty"`
	// Duration of each completed stage in milliseconds.
	StageDurationsMS map[string]int64 `json:"stage_durations_ms"`
	// Process ID of the launched service, 0 before launch.
	// example: 42
	ServicePID int `json:"service_pid,omitempty" example:"42"`
	// Exit code of the service once it has exited.
	ServiceExitCode *int `json:"service_exit_code,omitempty"`
	// Lifecycle events in publish order, when the controller records them.
	Events []EventStatus `json:"events,omitempty"`
	// Uptime of the controller in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
