package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/im7mortal/kmutex"
	"github.com/rs/zerolog"

	"github.com/IntrovertedFL/runtipi/pkg/cache"
	"github.com/IntrovertedFL/runtipi/pkg/dispatch"
	"github.com/IntrovertedFL/runtipi/pkg/policy"
	"github.com/IntrovertedFL/runtipi/pkg/stores"
	"github.com/IntrovertedFL/runtipi/pkg/telemetry"
	"github.com/IntrovertedFL/runtipi/pkg/version"
)

const (
	// versionCacheKey pins the latest published version in the cache.
	versionCacheKey = "latestVersion"

	// versionCacheTTL bounds how long a resolved latest version is reused.
	versionCacheTTL = time.Hour

	// systemLockKey serializes system-wide transitions. The singleton
	// status follows the same per-key critical-section discipline as
	// application records.
	systemLockKey = "system"
)

// SystemControllerConfig carries the collaborators and environment
// facts the system controller needs.
type SystemControllerConfig struct {
	Store       stores.Store
	Cache       cache.Cache
	Dispatcher  dispatch.Dispatcher
	Guard       Guard
	Releases    ReleaseSource
	Environment string
	Current     string
}

// SystemController drives the platform-wide lifecycle state machine.
//
// RUNNING is the only status from which UPDATING or RESTARTING may be
// requested. The controller writes the transient status and dispatches
// the intent; the external runner restores RUNNING once real work
// completes. The controller never times out or rolls back a pending
// transition on its own.
type SystemController struct {
	store    stores.Store
	cache    cache.Cache
	dispatch dispatch.Dispatcher
	guard    Guard
	releases ReleaseSource
	env      string
	current  string
	km       *kmutex.Kmutex
	logger   zerolog.Logger
}

// updatePayload tells the runner which version to update to.
type updatePayload struct {
	Version string `json:"version"`
}

// NewSystemController creates the system lifecycle controller.
func NewSystemController(cfg SystemControllerConfig, logger zerolog.Logger) *SystemController {
	return &SystemController{
		store:    cfg.Store,
		cache:    cfg.Cache,
		dispatch: cfg.Dispatcher,
		guard:    cfg.Guard,
		releases: cfg.Releases,
		env:      cfg.Environment,
		current:  cfg.Current,
		km:       kmutex.New(),
		logger:   logger.With().Str("component", "system-controller").Logger(),
	}
}

// Status returns the current system status.
func (c *SystemController) Status(ctx context.Context) (SystemStatus, error) {
	status, err := c.store.GetSystemStatus(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read system status: %w", err)
	}
	return SystemStatus(status), nil
}

// Version reports the running build version and the latest published
// one. A failed release lookup degrades to an empty Latest rather than
// failing the call.
func (c *SystemController) Version(ctx context.Context) *VersionInfo {
	info := &VersionInfo{Current: c.current}

	latest, err := c.latestVersion(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Latest version lookup failed")
		return info
	}

	info.Latest = latest
	return info
}

// Update requests a platform update to the latest published version.
//
// The request passes the policy guard, then the busy check: a system not
// in RUNNING rejects with OperationInProgress before any version is even
// resolved, so an in-flight operation is never double-dispatched and the
// release endpoint is left alone while busy. Only then run the version
// gates in order: unknown latest, equality, downgrade, major boundary.
// On success the status is durably UPDATING before the update intent
// reaches the dispatcher.
func (c *SystemController) Update(ctx context.Context) error {
	err := telemetry.RecordTransition(ctx, "", "update", c.update)
	recordErrorKind(ctx, err)
	return err
}

func (c *SystemController) update(ctx context.Context) error {
	if err := c.authorize(ctx, "system.update"); err != nil {
		return err
	}

	c.km.Lock(systemLockKey)
	defer c.km.Unlock(systemLockKey)

	status, err := c.store.GetSystemStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to read system status: %w", err)
	}
	if SystemStatus(status) != SystemRunning {
		return NewOperationInProgress("update", SystemStatus(status))
	}

	latest, err := c.latestVersion(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Cannot resolve latest version for update")
		return NewVersionUnavailable("latest version is unknown")
	}

	current, err := version.Parse(c.current)
	if err != nil {
		return NewVersionUnavailable(fmt.Sprintf("current version %q is not semantic", c.current))
	}
	target, err := version.Parse(latest)
	if err != nil {
		return NewVersionUnavailable(fmt.Sprintf("latest version %q is not semantic", latest))
	}

	switch {
	case current.Equal(target):
		return NewAlreadyUpToDate(c.current)
	case target.Less(current):
		return NewDowngradeRejected(c.current, latest)
	case !current.SameMajor(target):
		return NewMajorVersionMismatch(c.current, latest)
	}

	if err := c.store.SetSystemStatus(ctx, stores.SystemStatusUpdating); err != nil {
		return fmt.Errorf("failed to write system status: %w", err)
	}

	payload, err := json.Marshal(updatePayload{Version: latest})
	if err != nil {
		return fmt.Errorf("failed to encode update payload: %w", err)
	}

	event := dispatch.NewEvent(dispatch.EventTypeUpdate, "", payload)
	if err := c.dispatch.Dispatch(ctx, event); err != nil {
		// The status stays UPDATING: this controller never rolls back a
		// provisional state. The operator recovers via settlement.
		c.logger.Error().Err(err).Str("event_id", event.ID).Msg("Failed to dispatch update event")
		return fmt.Errorf("failed to dispatch update event: %w", err)
	}

	c.logger.Info().
		Str("current", c.current).
		Str("target", latest).
		Str("event_id", event.ID).
		Msg("System update dispatched")

	return nil
}

// Restart requests a platform restart.
func (c *SystemController) Restart(ctx context.Context) error {
	err := telemetry.RecordTransition(ctx, "", "restart", c.restart)
	recordErrorKind(ctx, err)
	return err
}

func (c *SystemController) restart(ctx context.Context) error {
	if err := c.authorize(ctx, "system.restart"); err != nil {
		return err
	}

	c.km.Lock(systemLockKey)
	defer c.km.Unlock(systemLockKey)

	status, err := c.store.GetSystemStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to read system status: %w", err)
	}
	if SystemStatus(status) != SystemRunning {
		return NewOperationInProgress("restart", SystemStatus(status))
	}

	if err := c.store.SetSystemStatus(ctx, stores.SystemStatusRestarting); err != nil {
		return fmt.Errorf("failed to write system status: %w", err)
	}

	event := dispatch.NewEvent(dispatch.EventTypeRestart, "", nil)
	if err := c.dispatch.Dispatch(ctx, event); err != nil {
		c.logger.Error().Err(err).Str("event_id", event.ID).Msg("Failed to dispatch restart event")
		return fmt.Errorf("failed to dispatch restart event: %w", err)
	}

	c.logger.Info().
		Str("event_id", event.ID).
		Msg("System restart dispatched")

	return nil
}

// authorize runs a guarded operation through the policy engine.
func (c *SystemController) authorize(ctx context.Context, operation string) error {
	if c.guard == nil {
		return nil
	}

	result, err := c.guard.EvaluateOperation(ctx, &policy.Input{
		Operation:   operation,
		Environment: c.env,
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

// latestVersion resolves the latest published version through the
// cache, falling back to a single release lookup on miss.
func (c *SystemController) latestVersion(ctx context.Context) (string, error) {
	cached, found, err := c.cache.Get(ctx, versionCacheKey)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Version cache read failed")
	} else if found {
		return cached, nil
	}

	latest, err := c.releases.LatestVersion(ctx)
	if err != nil {
		telemetry.RecordReleaseLookup(ctx, "error")
		return "", NewUpstreamUnavailable(err)
	}
	telemetry.RecordReleaseLookup(ctx, "ok")
	latest = version.Normalize(latest)

	if err := c.cache.Set(ctx, versionCacheKey, latest, versionCacheTTL); err != nil {
		c.logger.Warn().Err(err).Msg("Version cache write failed")
	}

	return latest, nil
}
