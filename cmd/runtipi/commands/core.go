package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/IntrovertedFL/runtipi/pkg/cache"
	"github.com/IntrovertedFL/runtipi/pkg/config"
	"github.com/IntrovertedFL/runtipi/pkg/dispatch"
	"github.com/IntrovertedFL/runtipi/pkg/lifecycle"
	"github.com/IntrovertedFL/runtipi/pkg/policy"
	"github.com/IntrovertedFL/runtipi/pkg/release"
	"github.com/IntrovertedFL/runtipi/pkg/sessions"
	"github.com/IntrovertedFL/runtipi/pkg/stores"
)

// core bundles the wired collaborators behind the lifecycle controllers.
// Both the daemon and the one-shot commands build one; the daemon keeps
// it alive, one-shot commands close it after a single operation.
type core struct {
	cfg        *config.Config
	store      stores.Store
	cache      cache.Cache
	dispatcher dispatch.Dispatcher
	guard      *policy.Engine
	system     *lifecycle.SystemController
	apps       *lifecycle.AppController
	sessions   *sessions.Manager
}

// openCore loads the configuration from the --config flag and wires the
// controllers. One-shot commands use this; the daemon loads the config
// itself (it also feeds telemetry) and calls buildCore directly.
func openCore(ctx context.Context) (*core, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return buildCore(ctx, cfg, commandLogger())
}

// buildCore wires the collaborators and controllers for a loaded
// configuration.
func buildCore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*core, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := stores.NewSQLiteStore(cfg.ToStoreConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open status store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize status store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate status store: %w", err)
	}

	c, err := cache.New(cfg.ToCacheConfig(), logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	dispatcher, err := buildDispatcher(cfg, logger)
	if err != nil {
		_ = c.Close()
		_ = store.Close()
		return nil, err
	}

	guard, err := policy.NewEngine(logger)
	if err != nil {
		_ = dispatcher.Close()
		_ = c.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to create policy engine: %w", err)
	}
	if len(cfg.Policy.Paths) > 0 {
		if err := guard.LoadPolicies(ctx, cfg.Policy.Paths); err != nil {
			_ = dispatcher.Close()
			_ = c.Close()
			_ = store.Close()
			return nil, fmt.Errorf("failed to load policies: %w", err)
		}
	}

	releases := release.NewClient(cfg.ToReleaseConfig(), logger)

	system := lifecycle.NewSystemController(lifecycle.SystemControllerConfig{
		Store:       store,
		Cache:       c,
		Dispatcher:  dispatcher,
		Guard:       guard,
		Releases:    releases,
		Environment: cfg.Environment,
		Current:     buildVersion,
	}, logger)

	apps := lifecycle.NewAppController(lifecycle.AppControllerConfig{
		Store:       store,
		Dispatcher:  dispatcher,
		Guard:       guard,
		Environment: cfg.Environment,
	}, logger)

	return &core{
		cfg:        cfg,
		store:      store,
		cache:      c,
		dispatcher: dispatcher,
		guard:      guard,
		system:     system,
		apps:       apps,
		sessions:   sessions.NewManager(cfg.ToSessionsConfig(), c, logger),
	}, nil
}

// buildDispatcher creates the configured dispatch engine.
func buildDispatcher(cfg *config.Config, logger zerolog.Logger) (dispatch.Dispatcher, error) {
	switch cfg.Dispatch.Engine {
	case "nats":
		d, err := dispatch.NewNATSDispatcher(cfg.ToNATSConfig(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create NATS dispatcher: %w", err)
		}
		return d, nil
	case "spool", "":
		d, err := dispatch.NewSpoolDispatcher(cfg.ToSpoolConfig(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create spool dispatcher: %w", err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown dispatch engine: %s", cfg.Dispatch.Engine)
	}
}

// close releases the core's resources, logging rather than failing on
// errors since it runs on every exit path.
func (c *core) close() {
	if err := c.dispatcher.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close dispatcher")
	}
	if err := c.cache.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close cache")
	}
	if err := c.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close status store")
	}
}

// commandLogger returns the zerolog logger one-shot commands hand to the
// wired packages, honoring --verbose.
func commandLogger() zerolog.Logger {
	logger := log.Logger
	if verbose {
		logger = logger.Level(zerolog.DebugLevel)
	}
	return logger
}

// printResult renders a command result as JSON or via the fallback
// printer depending on --json.
func printResult(v interface{}, plain func()) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	plain()
	return nil
}
