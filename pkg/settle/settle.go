// Package settle observes the runner's result write-backs and applies
// them to the status store. The runner drops one JSON file per finished
// operation into the results directory under the spool root; the
// watcher validates the reported status, writes it through the store,
// and removes the file. Only settled statuses are accepted: the runner
// reports outcomes, it does not request work.
package settle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/IntrovertedFL/runtipi/pkg/lifecycle"
	"github.com/IntrovertedFL/runtipi/pkg/stores"
	"github.com/IntrovertedFL/runtipi/pkg/telemetry"
)

// ResultsDir is the subdirectory of the spool root the runner writes
// settlements into.
const ResultsDir = "results"

// errInvalidSettlement marks a settlement that can never be applied.
// Files carrying one are removed instead of retried.
var errInvalidSettlement = errors.New("invalid settlement")

// Config holds settlement watcher configuration.
type Config struct {
	// Dir is the spool root shared with the dispatcher. Settlements
	// are read from Dir/results.
	Dir string `yaml:"dir"`
}

// Settlement is one outcome reported by the runner.
type Settlement struct {
	// AppID targets an application record. Empty for system
	// settlements.
	AppID string `json:"app_id,omitempty"`

	// System marks a platform-wide settlement.
	System bool `json:"system,omitempty"`

	// Status is the settled status to record: running, stopped, or
	// missing for applications, RUNNING for the system.
	Status string `json:"status"`

	// Error carries the runner's failure message when the operation
	// did not succeed. The settled status is applied either way.
	Error string `json:"error,omitempty"`
}

// validate checks that the settlement names exactly one target and a
// settled status for it.
func (s *Settlement) validate() error {
	switch {
	case s.System && s.AppID != "":
		return fmt.Errorf("%w: both system and app_id set", errInvalidSettlement)
	case !s.System && s.AppID == "":
		return fmt.Errorf("%w: no target", errInvalidSettlement)
	}

	if s.System {
		if lifecycle.SystemStatus(s.Status) != lifecycle.SystemRunning {
			return fmt.Errorf("%w: system status %q is not a settled state", errInvalidSettlement, s.Status)
		}
		return nil
	}

	status := lifecycle.AppStatus(s.Status)
	if err := status.Validate(); err != nil {
		return fmt.Errorf("%w: %s", errInvalidSettlement, err)
	}
	if !status.IsSettled() {
		return fmt.Errorf("%w: app status %q is transient", errInvalidSettlement, s.Status)
	}
	return nil
}

// Watcher applies runner settlements to the status store.
type Watcher struct {
	dir     string
	store   stores.Store
	watcher *fsnotify.Watcher
	logger  zerolog.Logger
}

// New creates a settlement watcher and ensures the results directory
// exists.
func New(cfg Config, store stores.Store, logger zerolog.Logger) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("spool directory is required")
	}

	results := filepath.Join(cfg.Dir, ResultsDir)
	if err := os.MkdirAll(results, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}

	return &Watcher{
		dir:    results,
		store:  store,
		logger: logger.With().Str("component", "settle").Logger(),
	}, nil
}

// Start watches the results directory, applying settlements as they
// arrive. Files already present are applied before Start returns, so a
// restart catches up on anything the runner wrote while the core was
// down.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.watcher = watcher

	// Watch before scanning so nothing lands in the gap between the
	// two. A file caught by both is applied once; the second attempt
	// finds it gone.
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch results directory: %w", err)
	}

	w.scan(ctx)

	go w.processEvents(ctx)

	w.logger.Info().
		Str("dir", w.dir).
		Msg("Started settlement watcher")

	return nil
}

// Close stops watching for settlements.
func (w *Watcher) Close() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

// scan applies every settlement file already in the results directory.
func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to scan results directory")
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !isResultFile(entry.Name()) {
			continue
		}
		w.applyFile(ctx, filepath.Join(w.dir, entry.Name()))
	}
}

// processEvents handles file system events until the context ends.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 && isResultFile(filepath.Base(event.Name)) {
				w.applyFile(ctx, event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// applyFile reads one settlement file and applies it. Invalid
// settlements are removed so they are not retried forever; a failed
// store write leaves the file for the next catch-up scan.
func (w *Watcher) applyFile(ctx context.Context, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn().Err(err).Str("file", path).Msg("Failed to read settlement")
		}
		return
	}

	var settlement Settlement
	if err := json.Unmarshal(raw, &settlement); err != nil {
		// Possibly a write still in flight. The next event or scan
		// retries it.
		w.logger.Warn().Err(err).Str("file", path).Msg("Settlement not parseable, leaving file")
		return
	}

	if err := w.apply(ctx, &settlement); err != nil {
		if errors.Is(err, errInvalidSettlement) || errors.Is(err, stores.ErrNotFound) {
			reason := "invalid"
			if errors.Is(err, stores.ErrNotFound) {
				reason = "unknown_target"
			}
			telemetry.RecordSettlementRejection(ctx, reason)
			w.logger.Warn().Err(err).Str("file", path).Msg("Rejected settlement removed")
			w.remove(path)
			return
		}
		w.logger.Error().Err(err).Str("file", path).Msg("Failed to apply settlement, leaving file")
		return
	}

	entity := "app"
	if settlement.System {
		entity = "system"
	}
	telemetry.RecordSettlement(ctx, entity, settlement.Status)

	if settlement.Error != "" {
		w.logger.Warn().
			Str("app", settlement.AppID).
			Str("status", settlement.Status).
			Str("error", settlement.Error).
			Msg("Runner reported a failed operation")
	}

	w.logger.Info().
		Str("app", settlement.AppID).
		Bool("system", settlement.System).
		Str("status", settlement.Status).
		Msg("Settlement applied")

	w.remove(path)
}

// apply validates the settlement and writes it through the store.
func (w *Watcher) apply(ctx context.Context, settlement *Settlement) error {
	if err := settlement.validate(); err != nil {
		return err
	}

	if settlement.System {
		if err := w.store.SetSystemStatus(ctx, stores.SystemStatus(settlement.Status)); err != nil {
			return fmt.Errorf("failed to settle system status: %w", err)
		}
		return nil
	}

	if err := w.store.UpdateAppStatus(ctx, settlement.AppID, stores.AppStatus(settlement.Status)); err != nil {
		return fmt.Errorf("failed to settle app %s: %w", settlement.AppID, err)
	}
	return nil
}

func (w *Watcher) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		w.logger.Warn().Err(err).Str("file", path).Msg("Failed to remove settlement file")
	}
}

// isResultFile filters for finalized settlement files. Dot-prefixed
// names are the runner's in-progress temp files.
func isResultFile(name string) bool {
	return strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".")
}
