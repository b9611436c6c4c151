package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/IntrovertedFL/runtipi/pkg/telemetry"
)

// PendingDir is the subdirectory of the spool root the runner consumes from.
const PendingDir = "pending"

// SpoolConfig holds file spool dispatcher configuration.
type SpoolConfig struct {
	// Dir is the spool root. Events land in Dir/pending.
	Dir string
}

// SpoolDispatcher records intents as one JSON envelope file per event in a
// spool directory watched by the runner. Files appear atomically: they are
// written to a temp name first and renamed into place.
type SpoolDispatcher struct {
	dir    string
	logger zerolog.Logger
}

// NewSpoolDispatcher creates a spool dispatcher and ensures the pending
// directory exists.
func NewSpoolDispatcher(cfg SpoolConfig, logger zerolog.Logger) (*SpoolDispatcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("spool directory is required")
	}

	pending := filepath.Join(cfg.Dir, PendingDir)
	if err := os.MkdirAll(pending, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	return &SpoolDispatcher{
		dir:    pending,
		logger: logger.With().Str("component", "dispatch").Str("engine", "spool").Logger(),
	}, nil
}

// Dispatch writes the enveloped event into the pending directory.
func (d *SpoolDispatcher) Dispatch(ctx context.Context, event Event) error {
	return telemetry.RecordDispatch(ctx, "spool", string(event.Type), func(context.Context) error {
		return d.write(event)
	})
}

func (d *SpoolDispatcher) write(event Event) error {
	raw, err := Envelope(event)
	if err != nil {
		return fmt.Errorf("failed to envelope event: %w", err)
	}

	final := filepath.Join(d.dir, event.ID+".json")

	tmp, err := os.CreateTemp(d.dir, "."+event.ID+"-*")
	if err != nil {
		return fmt.Errorf("failed to create spool file: %w", err)
	}

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write spool file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close spool file: %w", err)
	}

	if err := os.Rename(tmp.Name(), final); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to publish spool file: %w", err)
	}

	d.logger.Debug().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("app_id", event.AppID).
		Msg("Event spooled")

	return nil
}

// Close implements Dispatcher. The spool has no resources to release.
func (d *SpoolDispatcher) Close() error {
	return nil
}
