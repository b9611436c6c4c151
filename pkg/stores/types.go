package stores

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// AppStatus mirrors the lifecycle app statuses at the persistence layer.
type AppStatus string

const (
	AppStatusRunning      AppStatus = "running"
	AppStatusStopped      AppStatus = "stopped"
	AppStatusInstalling   AppStatus = "installing"
	AppStatusUninstalling AppStatus = "uninstalling"
	AppStatusStopping     AppStatus = "stopping"
	AppStatusStarting     AppStatus = "starting"
	AppStatusMissing      AppStatus = "missing"
	AppStatusUpdating     AppStatus = "updating"
)

// SystemStatus mirrors the platform-wide statuses at the persistence layer.
type SystemStatus string

const (
	SystemStatusRunning    SystemStatus = "RUNNING"
	SystemStatusUpdating   SystemStatus = "UPDATING"
	SystemStatusRestarting SystemStatus = "RESTARTING"
)

// systemKey is the single well-known row holding the platform status.
const systemKey = "tipi"

// App represents a managed application record. Records are never deleted:
// an uninstalled app keeps its row with status "missing".
type App struct {
	ID           string     `json:"id"`
	Status       AppStatus  `json:"status"`
	Config       string     `json:"config"` // opaque JSON blob
	Exposed      bool       `json:"exposed"`
	Domain       *string    `json:"domain,omitempty"`
	OpenCount    int64      `json:"open_count"`
	LastOpenedAt *time.Time `json:"last_opened_at,omitempty"`
	Version      int64      `json:"version"` // bumped on every mutation
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// App operations
	CreateApp(ctx context.Context, app *App) error
	GetApp(ctx context.Context, id string) (*App, error)
	ListApps(ctx context.Context) ([]*App, error)
	UpdateAppStatus(ctx context.Context, id string, status AppStatus) error
	ReinstallApp(ctx context.Context, id string, config string, exposed bool, domain *string) error
	RecordAppOpen(ctx context.Context, id string) error

	// System status operations
	GetSystemStatus(ctx context.Context) (SystemStatus, error)
	SetSystemStatus(ctx context.Context, status SystemStatus) error

	// Utility
	HealthCheck(ctx context.Context) error
}
