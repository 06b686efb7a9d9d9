package bootstrap

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "voiced",
			Subsystem: "bootstrap",
			Name:      "stage_duration_seconds",
			Help:      "Duration of bootstrap stages in seconds",
			Buckets:   []float64{.001, .01, .1, .5, 1, 5, 30, 120, 600},
		},
		[]string{"stage"},
	)

	stageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voiced",
			Subsystem: "bootstrap",
			Name:      "fatal_total",
			Help:      "Fatal bootstrap failures by stage",
		},
		[]string{"stage"},
	)

	deviceSelected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "voiced",
			Subsystem: "bootstrap",
			Name:      "device_selected",
			Help:      "1 for the selected device, 0 otherwise",
		},
		[]string{"device", "source"},
	)

	memoryTotalGB = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "voiced",
			Subsystem: "bootstrap",
			Name:      "memory_total_gigabytes",
			Help:      "Total system memory measured at startup",
		},
	)

	memorySufficient = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "voiced",
			Subsystem: "bootstrap",
			Name:      "memory_sufficient",
			Help:      "1 when total memory meets the advisory threshold",
		},
	)

	warmupSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "voiced",
			Subsystem: "bootstrap",
			Name:      "warmup_success",
			Help:      "1 when the model warm-up succeeded",
		},
	)

	serviceExitCode = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "voiced",
			Subsystem: "service",
			Name:      "exit_code",
			Help:      "Exit code of the launched service, -1 while running",
		},
	)
)

func init() {
	prometheus.MustRegister(stageDuration, stageFailures, deviceSelected, memoryTotalGB, memorySufficient, warmupSuccess, serviceExitCode)
}

func observeStage(stage Stage, d time.Duration) {
	stageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

func observeFatal(stage Stage) { stageFailures.WithLabelValues(string(stage)).Inc() }

func observeDevice(sel DeviceSelection) {
	deviceSelected.Reset()
	deviceSelected.WithLabelValues(string(sel.Device), sel.Source).Set(1)
}

func observeMemory(adv MemoryAdvisory) {
	memoryTotalGB.Set(adv.TotalGB)
	memorySufficient.Set(boolGauge(adv.Sufficient))
}

func observeWarmup(out WarmupOutcome) { warmupSuccess.Set(boolGauge(out.OK())) }

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
