package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"voiced/internal/bootstrap"
	"voiced/internal/healthcheck"
	"voiced/pkg/types"
)

func newHealthcheckCmd(a *app) *cobra.Command {
	var (
		url       string
		timeout   time.Duration
		retries   int
		interval  time.Duration
		directive bool
	)
	def := healthcheck.DefaultContract()
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe the service health endpoint (container HEALTHCHECK)",
		Example: "  HEALTHCHECK --interval=30s --timeout=10s --retries=3 CMD [\"voiced\", \"healthcheck\"]\n" +
			"  voiced healthcheck --url http://127.0.0.1:8000/health",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			c := healthcheck.Contract{Interval: interval, Timeout: timeout, Retries: retries, Path: cfg.HealthPath}
			if directive {
				fmt.Fprintln(a.stdout, def.Directive("voiced healthcheck"))
				return nil
			}
			target := url
			if target == "" {
				target = healthcheck.URL(cfg.Host, cfg.Port, cfg.HealthPath)
			}
			if err := healthcheck.Probe(cmd.Context(), &http.Client{}, target, c); err != nil {
				return &exitError{code: 1, err: fmt.Errorf("unhealthy: %w", err)}
			}
			fmt.Fprintln(a.stdout, "healthy")
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "probe this URL instead of http://<host>:<port><health-path>")
	cmd.Flags().DurationVar(&timeout, "timeout", def.Timeout, "timeout per attempt")
	cmd.Flags().IntVar(&retries, "retries", 1, "attempts before reporting unhealthy (the container runtime retries too)")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "pause between attempts")
	cmd.Flags().BoolVar(&directive, "print-directive", false, "print the Dockerfile HEALTHCHECK line and exit")
	return cmd
}

// detectOutput is printed by voiced detect.
type detectOutput struct {
	Device *types.DeviceStatus `json:"device"`
	Memory *types.MemoryStatus `json:"memory"`
}

func newDetectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Print the device selection and memory advisory as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			log, err := a.logger(cfg)
			if err != nil {
				return err
			}
			override, err := bootstrap.ParseDevice(cfg.Device)
			if err != nil {
				return usageErr(err)
			}
			d := bootstrap.Detector{Override: override, Probe: bootstrap.NvidiaProbe(""), Timeout: cfg.ProbeTimeout(), Logger: log}
			sel := d.Detect(cmd.Context())
			adv := bootstrap.UnknownMemory(cfg.MemoryThresholdGB)
			if total, err := bootstrap.SystemMemory(); err == nil {
				adv = bootstrap.AuditMemory(total, cfg.MemoryThresholdGB)
			} else {
				log.Warn().Err(err).Msg("could not measure system memory")
			}
			st := bootstrap.Report{Device: &sel, Memory: &adv}.Status(time.Now())
			enc := json.NewEncoder(a.stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(detectOutput{Device: st.Device, Memory: st.Memory})
		},
	}
}

func newPrintConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "print-config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(a.stdout)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(a.stdout, "voiced", version)
		},
	}
}
