package settle

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/IntrovertedFL/runtipi/pkg/stores"
)

func setupStore(t *testing.T) *stores.SQLiteStore {
	t.Helper()

	store, err := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func setupWatcher(t *testing.T, store *stores.SQLiteStore) (*Watcher, string) {
	t.Helper()

	dir := t.TempDir()
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	watcher, err := New(Config{Dir: dir}, store, logger)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	t.Cleanup(func() { _ = watcher.Close() })

	return watcher, filepath.Join(dir, ResultsDir)
}

func seedApp(t *testing.T, store *stores.SQLiteStore, id string, status stores.AppStatus) {
	t.Helper()

	ctx := context.Background()
	if err := store.CreateApp(ctx, &stores.App{ID: id, Status: stores.AppStatusInstalling}); err != nil {
		t.Fatalf("failed to seed app %s: %v", id, err)
	}
	if err := store.UpdateAppStatus(ctx, id, status); err != nil {
		t.Fatalf("failed to seed status for %s: %v", id, err)
	}
}

func writeResult(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write result file: %v", err)
	}
	return path
}

func appStatus(t *testing.T, store *stores.SQLiteStore, id string) stores.AppStatus {
	t.Helper()

	rec, err := store.GetApp(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to read app %s: %v", id, err)
	}
	return rec.Status
}

func waitForAppStatus(t *testing.T, store *stores.SQLiteStore, id string, want stores.AppStatus) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if appStatus(t, store, id) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("app %s never settled to %s, still %s", id, want, appStatus(t, store, id))
}

func waitForGone(t *testing.T, path string) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("settlement file %s was never removed", path)
}

func TestNewRequiresDir(t *testing.T) {
	store := setupStore(t)
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	if _, err := New(Config{}, store, logger); err == nil {
		t.Fatal("New() with empty dir = nil, want error")
	}
}

// Files written while the core was down are applied during Start.
func TestCatchUpScan(t *testing.T) {
	store := setupStore(t)
	seedApp(t, store, "nextcloud", stores.AppStatusInstalling)
	watcher, results := setupWatcher(t, store)

	path := writeResult(t, results, "evt-1.json", `{"app_id":"nextcloud","status":"running"}`)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := appStatus(t, store, "nextcloud"); got != stores.AppStatusRunning {
		t.Errorf("status after catch-up = %s, want %s", got, stores.AppStatusRunning)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("applied settlement file was not removed")
	}
}

func TestWatchAppliesArrivingSettlement(t *testing.T) {
	store := setupStore(t)
	seedApp(t, store, "jellyfin", stores.AppStatusStopping)
	watcher, results := setupWatcher(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	path := writeResult(t, results, "evt-2.json", `{"app_id":"jellyfin","status":"stopped"}`)

	waitForAppStatus(t, store, "jellyfin", stores.AppStatusStopped)
	waitForGone(t, path)
}

func TestSystemSettlementRestoresRunning(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	if err := store.SetSystemStatus(ctx, stores.SystemStatusUpdating); err != nil {
		t.Fatalf("failed to seed system status: %v", err)
	}

	watcher, results := setupWatcher(t, store)
	writeResult(t, results, "evt-3.json", `{"system":true,"status":"RUNNING"}`)

	runCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := watcher.Start(runCtx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	status, err := store.GetSystemStatus(ctx)
	if err != nil {
		t.Fatalf("GetSystemStatus() error = %v", err)
	}
	if status != stores.SystemStatusRunning {
		t.Errorf("system status = %s, want %s", status, stores.SystemStatusRunning)
	}
}

// The runner reports outcomes, not work: a transient status in a
// settlement is rejected and the file removed.
func TestRejectsInvalidSettlements(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"transient app status", `{"app_id":"nextcloud","status":"starting"}`},
		{"unknown app status", `{"app_id":"nextcloud","status":"paused"}`},
		{"transient system status", `{"system":true,"status":"UPDATING"}`},
		{"no target", `{"status":"running"}`},
		{"both targets", `{"app_id":"nextcloud","system":true,"status":"running"}`},
		{"unknown app", `{"app_id":"ghost","status":"running"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupStore(t)
			seedApp(t, store, "nextcloud", stores.AppStatusStarting)
			watcher, results := setupWatcher(t, store)

			path := writeResult(t, results, "evt.json", tt.content)

			ctx, cancel := context.WithCancel(context.Background())
			t.Cleanup(cancel)
			if err := watcher.Start(ctx); err != nil {
				t.Fatalf("Start() error = %v", err)
			}

			if _, err := os.Stat(path); !os.IsNotExist(err) {
				t.Error("rejected settlement file was not removed")
			}
			if got := appStatus(t, store, "nextcloud"); got != stores.AppStatusStarting {
				t.Errorf("status = %s, want %s untouched", got, stores.AppStatusStarting)
			}
		})
	}
}

// A settlement that cannot be written to the store stays on disk so a
// later catch-up scan can retry it.
func TestStoreFailureLeavesFile(t *testing.T) {
	store := setupStore(t)
	seedApp(t, store, "nextcloud", stores.AppStatusInstalling)
	watcher, results := setupWatcher(t, store)

	path := writeResult(t, results, "evt-4.json", `{"app_id":"nextcloud","status":"running"}`)

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("settlement file missing after store failure: %v", err)
	}
}

func TestIgnoresForeignFiles(t *testing.T) {
	store := setupStore(t)
	seedApp(t, store, "nextcloud", stores.AppStatusInstalling)
	watcher, results := setupWatcher(t, store)

	readme := writeResult(t, results, "README.md", "runner notes")
	tmp := writeResult(t, results, ".evt-5.json", `{"app_id":"nextcloud","status":"running"}`)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for _, path := range []string{readme, tmp} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("foreign file %s was touched: %v", path, err)
		}
	}
	if got := appStatus(t, store, "nextcloud"); got != stores.AppStatusInstalling {
		t.Errorf("status = %s, want %s untouched", got, stores.AppStatusInstalling)
	}
}

func TestUnparseableFileLeft(t *testing.T) {
	store := setupStore(t)
	watcher, results := setupWatcher(t, store)

	path := writeResult(t, results, "evt-6.json", `{"app_id":"next`)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("unparseable file was removed: %v", err)
	}
}

// A failed operation still settles: the reported status is applied and
// the runner's error only logged.
func TestFailedOperationSettles(t *testing.T) {
	store := setupStore(t)
	seedApp(t, store, "nextcloud", stores.AppStatusInstalling)
	watcher, results := setupWatcher(t, store)

	writeResult(t, results, "evt-7.json", `{"app_id":"nextcloud","status":"missing","error":"image pull failed"}`)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := appStatus(t, store, "nextcloud"); got != stores.AppStatusMissing {
		t.Errorf("status = %s, want %s", got, stores.AppStatusMissing)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		settlement Settlement
		wantErr    bool
	}{
		{"app running", Settlement{AppID: "a", Status: "running"}, false},
		{"app stopped", Settlement{AppID: "a", Status: "stopped"}, false},
		{"app missing", Settlement{AppID: "a", Status: "missing"}, false},
		{"system running", Settlement{System: true, Status: "RUNNING"}, false},
		{"app transient", Settlement{AppID: "a", Status: "updating"}, true},
		{"system transient", Settlement{System: true, Status: "RESTARTING"}, true},
		{"system lower-case", Settlement{System: true, Status: "running"}, true},
		{"no target", Settlement{Status: "running"}, true},
		{"both targets", Settlement{AppID: "a", System: true, Status: "running"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.settlement.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
