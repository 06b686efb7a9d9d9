package bootstrap

import (
	"errors"

	"github.com/prometheus/procfs"
)

// DefaultMemoryThresholdGB is the advisory floor for reliable model loading.
const DefaultMemoryThresholdGB = 4.0

const bytesPerGB = 1 << 30

// ProcRoot is the procfs mount read first; sysinfo(2) is the fallback on
// Linux.
const ProcRoot = procfs.DefaultMountPoint

// MemoryReader returns the total system memory in bytes.
type MemoryReader func() (uint64, error)

// MemoryAdvisory is the outcome of the memory audit. It only drives a log
// line and never changes control flow.
type MemoryAdvisory struct {
	Known       bool
	TotalGB     float64
	ThresholdGB float64
	Sufficient  bool
}

// AuditMemory compares totalBytes with thresholdGB.
func AuditMemory(totalBytes uint64, thresholdGB float64) MemoryAdvisory {
	if thresholdGB <= 0 {
		thresholdGB = DefaultMemoryThresholdGB
	}
	gb := float64(totalBytes) / bytesPerGB
	return MemoryAdvisory{Known: true, TotalGB: gb, ThresholdGB: thresholdGB, Sufficient: gb >= thresholdGB}
}

// UnknownMemory is the advisory used when measurement failed. It is marked
// sufficient so that no low-memory warning is raised on top of the
// measurement warning.
func UnknownMemory(thresholdGB float64) MemoryAdvisory {
	if thresholdGB <= 0 {
		thresholdGB = DefaultMemoryThresholdGB
	}
	return MemoryAdvisory{ThresholdGB: thresholdGB, Sufficient: true}
}

// SystemMemory reads MemTotal from procfs and falls back to the platform
// syscall.
func SystemMemory() (uint64, error) {
	total, err := ReadMeminfo(ProcRoot)
	if err == nil {
		return total, nil
	}
	total, serr := sysMemory()
	if serr != nil {
		return 0, errors.Join(err, serr)
	}
	return total, nil
}

// ReadMeminfo returns MemTotal in bytes from the meminfo file of the procfs
// mounted at root.
func ReadMeminfo(root string) (uint64, error) {
	fs, err := procfs.NewFS(root)
	if err != nil {
		return 0, err
	}
	mi, err := fs.Meminfo()
	if err != nil {
		return 0, err
	}
	if mi.MemTotal == nil {
		return 0, errors.New("meminfo: MemTotal not found")
	}
	return *mi.MemTotal * 1024, nil
}
