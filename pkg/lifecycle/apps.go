package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/im7mortal/kmutex"
	"github.com/rs/zerolog"

	"github.com/IntrovertedFL/runtipi/pkg/dispatch"
	"github.com/IntrovertedFL/runtipi/pkg/policy"
	"github.com/IntrovertedFL/runtipi/pkg/stores"
	"github.com/IntrovertedFL/runtipi/pkg/telemetry"
)

// AppControllerConfig carries the collaborators the app controller
// needs.
type AppControllerConfig struct {
	Store       stores.Store
	Dispatcher  dispatch.Dispatcher
	Guard       Guard
	Environment string
}

// AppController drives the per-application lifecycle state machine.
//
// Requests for the same application id are serialized with a keyed
// mutex: the precondition check and the status write form one critical
// section, so two concurrent requests can never both pass the check.
// Requests for different ids proceed in parallel.
type AppController struct {
	store    stores.Store
	dispatch dispatch.Dispatcher
	guard    Guard
	env      string
	km       *kmutex.Kmutex
	logger   zerolog.Logger
}

// NewAppController creates the application lifecycle controller.
func NewAppController(cfg AppControllerConfig, logger zerolog.Logger) *AppController {
	return &AppController{
		store:    cfg.Store,
		dispatch: cfg.Dispatcher,
		guard:    cfg.Guard,
		env:      cfg.Environment,
		km:       kmutex.New(),
		logger:   logger.With().Str("component", "app-controller").Logger(),
	}
}

// Install requests installation of an application. A first install
// creates the record with status installing; reinstalling a missing app
// refreshes its configuration and re-enters installing. Apps in any
// other status reject with InvalidTransition.
func (c *AppController) Install(ctx context.Context, id string, opts InstallOptions) (*App, error) {
	var app *App
	err := telemetry.RecordTransition(ctx, id, string(ActionInstall), func(ctx context.Context) error {
		var err error
		app, err = c.install(ctx, id, opts)
		return err
	})
	recordErrorKind(ctx, err)
	return app, err
}

func (c *AppController) install(ctx context.Context, id string, opts InstallOptions) (*App, error) {
	if id == "" {
		return nil, fmt.Errorf("app id is required")
	}
	if len(opts.Config) > 0 && !json.Valid(opts.Config) {
		return nil, fmt.Errorf("config payload for app %s is not valid JSON", id)
	}

	if err := c.authorize(ctx, "app.install", id); err != nil {
		return nil, err
	}

	c.km.Lock(id)
	defer c.km.Unlock(id)

	config := string(opts.Config)
	if config == "" {
		config = "{}"
	}
	var domain *string
	if opts.Domain != "" {
		domain = &opts.Domain
	}

	rec, err := c.store.GetApp(ctx, id)
	switch {
	case errors.Is(err, stores.ErrNotFound):
		rec = &stores.App{
			ID:      id,
			Status:  stores.AppStatusInstalling,
			Config:  config,
			Exposed: opts.Exposed,
			Domain:  domain,
		}
		if err := c.store.CreateApp(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to create app %s: %w", id, err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read app %s: %w", id, err)
	default:
		if _, ok := TransitionFor(AppStatus(rec.Status), ActionInstall); !ok {
			return nil, NewInvalidTransition(id, ActionInstall, AppStatus(rec.Status))
		}
		// Reinstalling a missing app refreshes its configuration and
		// re-enters installing in one transaction.
		if err := c.store.ReinstallApp(ctx, id, config, opts.Exposed, domain); err != nil {
			return nil, fmt.Errorf("failed to reinstall app %s: %w", id, err)
		}
	}

	// Re-read so the returned view carries the bumped revision. The
	// status is durable before the runner can observe the event.
	rec, err = c.store.GetApp(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read app %s: %w", id, err)
	}

	event := dispatch.NewEvent(dispatch.EventTypeInstall, id, opts.Config)
	if err := c.dispatch.Dispatch(ctx, event); err != nil {
		c.logger.Error().Err(err).Str("app", id).Str("event_id", event.ID).Msg("Failed to dispatch install event")
		return nil, fmt.Errorf("failed to dispatch install event: %w", err)
	}

	c.logger.Info().
		Str("app", id).
		Str("event_id", event.ID).
		Msg("App install dispatched")

	return appFromRecord(rec), nil
}

// Start requests starting a stopped application.
func (c *AppController) Start(ctx context.Context, id string) (*App, error) {
	return c.transition(ctx, id, ActionStart)
}

// Stop requests stopping a running application.
func (c *AppController) Stop(ctx context.Context, id string) (*App, error) {
	return c.transition(ctx, id, ActionStop)
}

// Uninstall requests removal of an application's runtime artifacts.
// The record survives with status missing once the runner settles it.
func (c *AppController) Uninstall(ctx context.Context, id string) (*App, error) {
	return c.transition(ctx, id, ActionUninstall)
}

// Update requests an in-place update of an application.
func (c *AppController) Update(ctx context.Context, id string) (*App, error) {
	return c.transition(ctx, id, ActionUpdate)
}

// Get returns the latest committed view of an application, including
// transient statuses. No caching sits between this and the store.
func (c *AppController) Get(ctx context.Context, id string) (*App, error) {
	rec, err := c.store.GetApp(ctx, id)
	if err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			return nil, NewNotFound(id, err)
		}
		return nil, fmt.Errorf("failed to read app %s: %w", id, err)
	}
	return appFromRecord(rec), nil
}

// List returns all application records ordered by id.
func (c *AppController) List(ctx context.Context) ([]*App, error) {
	recs, err := c.store.ListApps(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}

	apps := make([]*App, 0, len(recs))
	for _, rec := range recs {
		apps = append(apps, appFromRecord(rec))
	}
	return apps, nil
}

// RecordOpen bumps the usage counters for an application.
func (c *AppController) RecordOpen(ctx context.Context, id string) error {
	if err := c.store.RecordAppOpen(ctx, id); err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			return NewNotFound(id, err)
		}
		return fmt.Errorf("failed to record open for app %s: %w", id, err)
	}
	return nil
}

// transition instruments and runs one table-driven state change.
func (c *AppController) transition(ctx context.Context, id string, action Action) (*App, error) {
	var app *App
	err := telemetry.RecordTransition(ctx, id, string(action), func(ctx context.Context) error {
		var err error
		app, err = c.apply(ctx, id, action)
		return err
	})
	recordErrorKind(ctx, err)
	return app, err
}

// apply performs the state change under the app's critical section:
// read, check, write, then dispatch.
func (c *AppController) apply(ctx context.Context, id string, action Action) (*App, error) {
	if id == "" {
		return nil, fmt.Errorf("app id is required")
	}

	if err := c.authorize(ctx, "app."+string(action), id); err != nil {
		return nil, err
	}

	c.km.Lock(id)
	defer c.km.Unlock(id)

	rec, err := c.store.GetApp(ctx, id)
	if err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			return nil, NewNotFound(id, err)
		}
		return nil, fmt.Errorf("failed to read app %s: %w", id, err)
	}

	tr, ok := TransitionFor(AppStatus(rec.Status), action)
	if !ok {
		return nil, NewInvalidTransition(id, action, AppStatus(rec.Status))
	}

	if err := c.store.UpdateAppStatus(ctx, id, stores.AppStatus(tr.To)); err != nil {
		return nil, fmt.Errorf("failed to write status for app %s: %w", id, err)
	}

	rec, err = c.store.GetApp(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read app %s: %w", id, err)
	}

	event := dispatch.NewEvent(tr.Event, id, nil)
	if err := c.dispatch.Dispatch(ctx, event); err != nil {
		// The provisional status stays written; the controller never
		// rolls it back.
		c.logger.Error().Err(err).Str("app", id).Str("event_id", event.ID).Msg("Failed to dispatch event")
		return nil, fmt.Errorf("failed to dispatch %s event: %w", tr.Event, err)
	}

	c.logger.Info().
		Str("app", id).
		Str("action", string(action)).
		Str("from", string(tr.From)).
		Str("to", string(tr.To)).
		Str("event_id", event.ID).
		Msg("App transition dispatched")

	return appFromRecord(rec), nil
}

// authorize runs a guarded app operation through the policy engine.
func (c *AppController) authorize(ctx context.Context, operation, appID string) error {
	if c.guard == nil {
		return nil
	}

	result, err := c.guard.EvaluateOperation(ctx, &policy.Input{
		Operation:   operation,
		Environment: c.env,
		AppID:       appID,
	})
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}
	if !result.Allowed {
		telemetry.RecordPolicyDenial(ctx, operation, result.DeniedBy())
		return NewEnvironmentRestricted(operation, result.Denial())
	}
	return nil
}
