package bootstrap

import (
	"fmt"
	"strings"
)

// Device is the compute target handed to the service.
type Device string

const (
	// DeviceAuto is only valid as an override; selection never yields it.
	DeviceAuto        Device = "auto"
	DeviceCPU         Device = "cpu"
	DeviceAccelerated Device = "accelerated"
)

// ParseDevice normalizes a DEVICE override. cuda and gpu are accepted as
// aliases for accelerated; the empty string means auto.
func ParseDevice(s string) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return DeviceAuto, nil
	case "cpu":
		return DeviceCPU, nil
	case "accelerated", "cuda", "gpu":
		return DeviceAccelerated, nil
	default:
		return "", fmt.Errorf("unknown device %q", s)
	}
}

// TorchName is the device string understood by the Python model loader.
func (d Device) TorchName() string {
	if d == DeviceAccelerated {
		return "cuda"
	}
	return "cpu"
}

// GPU is one row reported by the accelerator utility.
type GPU struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	MemoryMB int    `json:"memory_mb"`
}

// Selection sources.
const (
	SourceProbe    = "probe"
	SourceOverride = "override"
)

// DeviceSelection is computed once per process and passed by value to every
// later stage.
type DeviceSelection struct {
	Device Device
	Reason string
	Source string
	GPUs   []GPU
}

// Accelerated reports whether the service should load on the accelerator.
func (s DeviceSelection) Accelerated() bool { return s.Device == DeviceAccelerated }

// Env returns the variables that pin the model loader to the selection.
// CUDA_VISIBLE_DEVICES is blanked for cpu so libraries cannot pick a GPU
// behind our back.
func (s DeviceSelection) Env() map[string]string {
	env := map[string]string{
		"DEVICE":       string(s.Device),
		"TORCH_DEVICE": s.Device.TorchName(),
	}
	if !s.Accelerated() {
		env["CUDA_VISIBLE_DEVICES"] = ""
	}
	return env
}

// Stage names a bootstrap step.
type Stage string

const (
	StageDropPrivilege Stage = "drop_privilege"
	StageProvisionDirs Stage = "provision_dirs"
	StageDetectDevice  Stage = "detect_device"
	StageAuditMemory   Stage = "audit_memory"
	StageWarmup        Stage = "warmup"
	StageLaunch        Stage = "launch"
)

// Stages lists every stage in execution order.
var Stages = []Stage{
	StageDropPrivilege,
	StageProvisionDirs,
	StageDetectDevice,
	StageAuditMemory,
	StageWarmup,
	StageLaunch,
}
