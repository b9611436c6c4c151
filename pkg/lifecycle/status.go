package lifecycle

import (
	"encoding/json"
	"fmt"
)

// SystemStatus represents the platform-wide lifecycle state.
type SystemStatus string

const (
	// SystemRunning indicates normal operation; mutating operations are accepted.
	SystemRunning SystemStatus = "RUNNING"

	// SystemUpdating indicates a platform update has been dispatched and not yet settled.
	SystemUpdating SystemStatus = "UPDATING"

	// SystemRestarting indicates a platform restart has been dispatched and not yet settled.
	SystemRestarting SystemStatus = "RESTARTING"
)

// IsBusy returns true if the system is in a dispatched, not yet settled state.
func (s SystemStatus) IsBusy() bool {
	return s == SystemUpdating || s == SystemRestarting
}

// Validate checks if the system status is valid.
func (s SystemStatus) Validate() error {
	switch s {
	case SystemRunning, SystemUpdating, SystemRestarting:
		return nil
	default:
		return fmt.Errorf("invalid system status: %s", s)
	}
}

// AppStatus represents the lifecycle state of a single managed application.
type AppStatus string

const (
	// AppRunning indicates the application is installed and serving.
	AppRunning AppStatus = "running"

	// AppStopped indicates the application is installed but not serving.
	AppStopped AppStatus = "stopped"

	// AppInstalling indicates an install has been dispatched and not yet settled.
	AppInstalling AppStatus = "installing"

	// AppUninstalling indicates an uninstall has been dispatched and not yet settled.
	AppUninstalling AppStatus = "uninstalling"

	// AppStopping indicates a stop has been dispatched and not yet settled.
	AppStopping AppStatus = "stopping"

	// AppStarting indicates a start has been dispatched and not yet settled.
	AppStarting AppStatus = "starting"

	// AppMissing indicates the application is known but not installed.
	// Uninstalled records keep this status instead of being deleted.
	AppMissing AppStatus = "missing"

	// AppUpdating indicates an app update has been dispatched and not yet settled.
	AppUpdating AppStatus = "updating"
)

// IsTransient returns true if the status marks an in-flight operation
// awaiting settlement by the runner.
func (s AppStatus) IsTransient() bool {
	return s == AppInstalling || s == AppUninstalling || s == AppStopping ||
		s == AppStarting || s == AppUpdating
}

// IsSettled returns true if the status is a stable resting state.
func (s AppStatus) IsSettled() bool {
	return s == AppRunning || s == AppStopped || s == AppMissing
}

// Validate checks if the app status is valid.
func (s AppStatus) Validate() error {
	switch s {
	case AppRunning, AppStopped, AppInstalling, AppUninstalling,
		AppStopping, AppStarting, AppMissing, AppUpdating:
		return nil
	default:
		return fmt.Errorf("invalid app status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s SystemStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *SystemStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = SystemStatus(str)
	return s.Validate()
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s AppStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *AppStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = AppStatus(str)
	return s.Validate()
}
