package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/IntrovertedFL/runtipi/pkg/config"
	"github.com/IntrovertedFL/runtipi/pkg/lifecycle"
	"github.com/IntrovertedFL/runtipi/pkg/policy"
	"github.com/IntrovertedFL/runtipi/pkg/settle"
	"github.com/IntrovertedFL/runtipi/pkg/stores"
	"github.com/IntrovertedFL/runtipi/pkg/telemetry"
)

// stateGaugeInterval is how often the daemon refreshes the per-status
// gauges from the store.
const stateGaugeInterval = 30 * time.Second

func newStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the platform core daemon",
		Long: `Start the platform core and keep it running.

The daemon holds the lifecycle controllers, serves Prometheus metrics,
and watches the runner's results directory for settlements. Lifecycle
requests issued while the daemon runs (through the transport layer or
the CLI) are validated, recorded, and dispatched to the runner.`,
		Example: `  # Start with the default development configuration
  runtipi start

  # Start against a production config
  runtipi start --config /etc/runtipi/runtipi.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context())
		},
	}

	return cmd
}

func runDaemon(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	tel, err := telemetry.NewTelemetry(cfg.ToTelemetryConfig(buildVersion))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger := tel.Logger.Zerolog()
	ctx = tel.WithContext(ctx)

	core, err := buildCore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer core.close()

	if err := tel.StartMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	watcher, err := settle.New(cfg.ToSettleConfig(), core.store, logger)
	if err != nil {
		return fmt.Errorf("failed to create settlement watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start settlement watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if cfg.Policy.Watch && len(cfg.Policy.Paths) > 0 {
		loader := policy.NewLoader(logger)
		err := loader.Watch(ctx, cfg.Policy.Paths, func([]policy.Policy) error {
			return core.guard.LoadPolicies(ctx, cfg.Policy.Paths)
		})
		if err != nil {
			return fmt.Errorf("failed to watch policy paths: %w", err)
		}
		defer func() { _ = loader.StopWatching() }()
	}

	go sampleStateGauges(ctx, tel, core.store)

	status, err := core.system.Status(ctx)
	if err != nil {
		return err
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("status", string(status)).
		Str("dispatch_engine", cfg.Dispatch.Engine).
		Str("cache_engine", cfg.Cache.Engine).
		Msg("Platform core started")

	<-ctx.Done()

	logger.Info().Msg("Platform core stopping")
	return nil
}

// sampleStateGauges periodically refreshes the per-status app gauges and
// the count of unsettled operations from the store.
func sampleStateGauges(ctx context.Context, tel *telemetry.Telemetry, store stores.Store) {
	ticker := time.NewTicker(stateGaugeInterval)
	defer ticker.Stop()

	for {
		refreshStateGauges(ctx, tel, store)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func refreshStateGauges(ctx context.Context, tel *telemetry.Telemetry, store stores.Store) {
	apps, err := store.ListApps(ctx)
	if err != nil {
		return
	}

	counts := make(map[stores.AppStatus]float64)
	transient := 0.0
	for _, app := range apps {
		counts[app.Status]++
		if lifecycle.AppStatus(app.Status).IsTransient() {
			transient++
		}
	}
	for _, status := range []stores.AppStatus{
		stores.AppStatusRunning,
		stores.AppStatusStopped,
		stores.AppStatusInstalling,
		stores.AppStatusUninstalling,
		stores.AppStatusStopping,
		stores.AppStatusStarting,
		stores.AppStatusMissing,
		stores.AppStatusUpdating,
	} {
		tel.Metrics.SetAppCount(string(status), counts[status])
	}

	if status, err := store.GetSystemStatus(ctx); err == nil && lifecycle.SystemStatus(status) != lifecycle.SystemRunning {
		transient++
	}
	tel.Metrics.SetTransientOperations(transient)
}
