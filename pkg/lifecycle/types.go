package lifecycle

import (
	"encoding/json"
	"time"

	"github.com/IntrovertedFL/runtipi/pkg/stores"
)

// App is the controller-level view of an application record.
type App struct {
	// ID is the application identifier, immutable once created.
	ID string `json:"id"`

	// Status is the current lifecycle status.
	Status AppStatus `json:"status"`

	// Config is the opaque configuration payload interpreted by the
	// runner.
	Config json.RawMessage `json:"config,omitempty"`

	// Exposed indicates whether the app is reachable externally.
	Exposed bool `json:"exposed"`

	// Domain is the optional domain binding for exposed apps.
	Domain string `json:"domain,omitempty"`

	// OpenCount counts dashboard opens.
	OpenCount int64 `json:"open_count"`

	// LastOpenedAt is when the app was last opened, if ever.
	LastOpenedAt *time.Time `json:"last_opened_at,omitempty"`

	// Version is the record's monotonically increasing revision counter.
	Version int64 `json:"version"`

	// CreatedAt is when the record was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the record was last mutated.
	UpdatedAt time.Time `json:"updated_at"`
}

// InstallOptions carries the caller-supplied install parameters.
type InstallOptions struct {
	// Config is the opaque configuration payload for the runner.
	Config json.RawMessage `json:"config,omitempty"`

	// Exposed requests external reachability.
	Exposed bool `json:"exposed,omitempty"`

	// Domain binds the app to a domain when exposed.
	Domain string `json:"domain,omitempty"`
}

// VersionInfo reports the running build version and the latest
// published one. Latest is empty when the release lookup degraded.
type VersionInfo struct {
	Current string `json:"current"`
	Latest  string `json:"latest,omitempty"`
}

// appFromRecord converts a persistence record into the controller view.
func appFromRecord(rec *stores.App) *App {
	app := &App{
		ID:           rec.ID,
		Status:       AppStatus(rec.Status),
		Exposed:      rec.Exposed,
		OpenCount:    rec.OpenCount,
		LastOpenedAt: rec.LastOpenedAt,
		Version:      rec.Version,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
	if rec.Config != "" {
		app.Config = json.RawMessage(rec.Config)
	}
	if rec.Domain != nil {
		app.Domain = *rec.Domain
	}
	return app
}
