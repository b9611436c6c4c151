package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/IntrovertedFL/runtipi/pkg/cache"
	"github.com/IntrovertedFL/runtipi/pkg/dispatch"
	"github.com/IntrovertedFL/runtipi/pkg/policy"
	"github.com/IntrovertedFL/runtipi/pkg/stores"
)

// testEnv bundles real collaborators backed by throwaway storage: an
// in-memory SQLite store, a memory cache, a file spool dispatcher on a
// temp directory, and the policy engine with its builtin policies.
type testEnv struct {
	store      *stores.SQLiteStore
	cache      *cache.MemoryCache
	dispatcher *dispatch.SpoolDispatcher
	guard      *policy.Engine
	spoolDir   string
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zerolog.New(nil).Level(zerolog.Disabled)
	ctx := context.Background()

	store, err := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	memCache := cache.NewMemoryCache(0, logger)
	t.Cleanup(func() { _ = memCache.Close() })

	spoolDir := t.TempDir()
	dispatcher, err := dispatch.NewSpoolDispatcher(dispatch.SpoolConfig{Dir: spoolDir}, logger)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}
	t.Cleanup(func() { _ = dispatcher.Close() })

	guard, err := policy.NewEngine(logger)
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}

	return &testEnv{
		store:      store,
		cache:      memCache,
		dispatcher: dispatcher,
		guard:      guard,
		spoolDir:   spoolDir,
	}
}

// systemController builds a controller over the env's collaborators.
// Zero-value config fields fall back to production at version 3.1.0.
func (e *testEnv) systemController(t *testing.T, cfg SystemControllerConfig) *SystemController {
	t.Helper()

	if cfg.Store == nil {
		cfg.Store = e.store
	}
	if cfg.Cache == nil {
		cfg.Cache = e.cache
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = e.dispatcher
	}
	if cfg.Guard == nil {
		cfg.Guard = e.guard
	}
	if cfg.Environment == "" {
		cfg.Environment = "production"
	}
	if cfg.Current == "" {
		cfg.Current = "3.1.0"
	}
	return NewSystemController(cfg, zerolog.New(nil).Level(zerolog.Disabled))
}

func (e *testEnv) appController(t *testing.T, cfg AppControllerConfig) *AppController {
	t.Helper()

	if cfg.Store == nil {
		cfg.Store = e.store
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = e.dispatcher
	}
	if cfg.Guard == nil {
		cfg.Guard = e.guard
	}
	if cfg.Environment == "" {
		cfg.Environment = "production"
	}
	return NewAppController(cfg, zerolog.New(nil).Level(zerolog.Disabled))
}

// seedApp creates a record and moves it to the given settled status.
func (e *testEnv) seedApp(t *testing.T, id string, status AppStatus) {
	t.Helper()

	ctx := context.Background()
	err := e.store.CreateApp(ctx, &stores.App{
		ID:     id,
		Status: stores.AppStatusInstalling,
		Config: "{}",
	})
	if err != nil {
		t.Fatalf("failed to seed app %s: %v", id, err)
	}
	if err := e.store.UpdateAppStatus(ctx, id, stores.AppStatus(status)); err != nil {
		t.Fatalf("failed to seed status for app %s: %v", id, err)
	}
}

// seedStatus moves an existing record to the given status directly,
// simulating a settlement applied outside the controller.
func (e *testEnv) seedStatus(t *testing.T, id string, status AppStatus) {
	t.Helper()

	if err := e.store.UpdateAppStatus(context.Background(), id, stores.AppStatus(status)); err != nil {
		t.Fatalf("failed to set status for app %s: %v", id, err)
	}
}

// spooledEvents opens every envelope in the pending directory.
func (e *testEnv) spooledEvents(t *testing.T) []dispatch.Event {
	t.Helper()

	pending := filepath.Join(e.spoolDir, dispatch.PendingDir)
	entries, err := os.ReadDir(pending)
	if err != nil {
		t.Fatalf("failed to read spool: %v", err)
	}

	var events []dispatch.Event
	for _, entry := range entries {
		raw, err := os.ReadFile(filepath.Join(pending, entry.Name()))
		if err != nil {
			t.Fatalf("failed to read spool file %s: %v", entry.Name(), err)
		}
		event, err := dispatch.OpenEnvelope(raw)
		if err != nil {
			t.Fatalf("failed to open envelope %s: %v", entry.Name(), err)
		}
		events = append(events, event)
	}
	return events
}

// eventsFor filters spooled events by type and target app.
func (e *testEnv) eventsFor(t *testing.T, eventType dispatch.EventType, appID string) []dispatch.Event {
	t.Helper()

	var matched []dispatch.Event
	for _, event := range e.spooledEvents(t) {
		if event.Type == eventType && event.AppID == appID {
			matched = append(matched, event)
		}
	}
	return matched
}

func (e *testEnv) systemStatus(t *testing.T) SystemStatus {
	t.Helper()

	status, err := e.store.GetSystemStatus(context.Background())
	if err != nil {
		t.Fatalf("failed to read system status: %v", err)
	}
	return SystemStatus(status)
}

func (e *testEnv) appStatus(t *testing.T, id string) AppStatus {
	t.Helper()

	rec, err := e.store.GetApp(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to read app %s: %v", id, err)
	}
	return AppStatus(rec.Status)
}

// stubReleases serves a fixed latest version and counts lookups.
type stubReleases struct {
	mu      sync.Mutex
	version string
	err     error
	calls   int
}

func (s *stubReleases) LatestVersion(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.version, nil
}

func (s *stubReleases) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// captureDispatcher records dispatched events in memory and lets tests
// observe or fail the handover through onDispatch.
type captureDispatcher struct {
	mu         sync.Mutex
	events     []dispatch.Event
	onDispatch func(dispatch.Event) error
}

func (d *captureDispatcher) Dispatch(_ context.Context, event dispatch.Event) error {
	d.mu.Lock()
	d.events = append(d.events, event)
	d.mu.Unlock()

	if d.onDispatch != nil {
		return d.onDispatch(event)
	}
	return nil
}

func (d *captureDispatcher) Close() error { return nil }

func (d *captureDispatcher) captured() []dispatch.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatch.Event(nil), d.events...)
}
