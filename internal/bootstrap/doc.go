// Package bootstrap prepares the host for the voice-cloning service and then
// hands control to it. It is structured into small files by concern:
//
//   - controller.go: Controller, Options and the fixed stage sequence.
//   - types.go: Device, DeviceSelection, Stage.
//   - errors.go: StageError and helpers (IsFatal, StageOf).
//   - privilege*.go: switching from root to the service identity and re-exec.
//   - dirs.go: idempotent creation of the data directories.
//   - device.go, nvidia.go: accelerator probing and device selection.
//   - memory*.go: total memory measurement and the low-memory advisory.
//   - warmup.go: model warm-up supervision; failures never abort startup.
//   - launcher.go: service command construction, signal forwarding, exit codes.
//   - metrics.go: Prometheus collectors for the stages above.
//
// Stages run strictly in order and each runs at most once per Controller.
// Only privilege and directory failures are fatal; detection falls back to
// cpu, the memory check is advisory and a failed warm-up leaves the service
// to load the model lazily.
package bootstrap
