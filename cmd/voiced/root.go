package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"voiced/internal/bootstrap"
	"voiced/internal/config"
	"voiced/internal/healthcheck"
	"voiced/internal/httpapi"
	"voiced/internal/logging"
	"voiced/pkg/types"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

// Exit codes besides the service's own.
const (
	exitOK    = 0
	exitFatal = bootstrap.ExitFatal
	exitUsage = 2
)

// exitError carries a process exit code through cobra. A nil err means the
// reason was already logged.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func usageErr(err error) error { return &exitError{code: exitUsage, err: err} }

type app struct {
	stdout io.Writer
	stderr io.Writer
	code   int

	configPath string
	envFile    string
}

func run(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if ee.err != nil {
				fmt.Fprintln(stderr, "voiced:", ee.err)
			}
			return ee.code
		}
		fmt.Fprintln(stderr, "voiced:", err)
		return exitUsage
	}
	return a.code
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "voiced",
		Short:         "Bootstrap and supervise the voice-cloning service",
		Long:          "voiced drops root privileges, provisions data directories, selects cpu or accelerator, checks memory, warms up the model and then runs the service, passing its exit code through.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			code, err := a.runService(cmd.Context(), cfg)
			if err != nil {
				var ee *exitError
				if errors.As(err, &ee) {
					return err
				}
				// fatal stage errors are already logged
				return &exitError{code: code}
			}
			a.code = code
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (.yaml, .yml, .json, .toml)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "KEY=VALUE file loaded into the environment; existing variables win")
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(newHealthcheckCmd(a), newDetectCmd(a), newPrintConfigCmd(a), newVersionCmd(a))
	return root
}

// loadConfig resolves flags > env > env file > config file > defaults.
func (a *app) loadConfig(cmd *cobra.Command) (config.Config, error) {
	if err := config.LoadEnvFile(a.envFile); err != nil {
		return config.Config{}, usageErr(err)
	}
	var file config.Config
	if a.configPath != "" {
		c, err := config.Load(a.configPath)
		if err != nil {
			return config.Config{}, usageErr(err)
		}
		file = c
	}
	v := viper.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return config.Config{}, usageErr(err)
	}
	cfg, err := config.Resolve(v, file)
	if err != nil {
		return config.Config{}, usageErr(err)
	}
	return cfg, nil
}

func (a *app) logger(cfg config.Config) (zerolog.Logger, error) {
	log, err := logging.New(a.stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return log, usageErr(err)
	}
	return log, nil
}

func (a *app) runService(ctx context.Context, cfg config.Config) (int, error) {
	log, err := a.logger(cfg)
	if err != nil {
		return exitUsage, err
	}
	override, err := bootstrap.ParseDevice(cfg.Device)
	if err != nil {
		return exitUsage, usageErr(err)
	}
	ctl := bootstrap.New(bootstrap.Options{
		DataRoot:          cfg.DataRoot,
		CachePath:         cfg.CachePath,
		ServiceUser:       cfg.ServiceUser,
		DeviceOverride:    override,
		ProbeTimeout:      cfg.ProbeTimeout(),
		MemoryThresholdGB: cfg.MemoryThresholdGB,
		WarmupTimeout:     cfg.WarmupTimeout(),
		WarmupCommand:     cfg.WarmupCommand,
		Logger:            log,
		Publisher:         bootstrap.NewMemoryPublisher(),
		Service: bootstrap.ServiceSpec{
			Argv:      cfg.ServiceCommand,
			Host:      cfg.Host,
			Port:      cfg.Port,
			LogLevel:  cfg.LogLevel,
			CachePath: cfg.CachePath,
			Stdout:    a.stdout,
			Stderr:    a.stderr,
		},
	})

	stopStatus := func() {}
	if cfg.StatusAddr != "" {
		stopStatus = startStatusServer(cfg, ctl, log.With().Str("run_id", ctl.RunID()).Logger())
	}
	defer stopStatus()

	return ctl.Run(ctx)
}

// statusService adapts the controller to the status server.
type statusService struct {
	ctl      *bootstrap.Controller
	upstream healthcheck.Upstream
}

func (s statusService) Status() types.StatusResponse { return s.ctl.Status() }

func (s statusService) Ready(ctx context.Context) bool {
	rep := s.ctl.Snapshot()
	if rep.PID == 0 || rep.ExitCode != nil {
		return false
	}
	return s.upstream.Ready(ctx)
}

func startStatusServer(cfg config.Config, ctl *bootstrap.Controller, log zerolog.Logger) func() {
	httpapi.SetLogger(log)
	if len(cfg.StatusCORSOrigins) > 0 {
		httpapi.SetCORSOptions(true, cfg.StatusCORSOrigins, nil, nil)
	}
	svc := statusService{
		ctl:      ctl,
		upstream: healthcheck.Upstream{URL: healthcheck.URL(cfg.Host, cfg.Port, cfg.HealthPath), Client: &http.Client{}},
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := httpapi.Serve(ctx, cfg.StatusAddr, httpapi.NewMux(svc)); err != nil {
			log.Error().Err(err).Str("addr", cfg.StatusAddr).Msg("status server stopped")
		}
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(6 * time.Second):
		}
	}
}
