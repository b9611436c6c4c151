package lifecycle

import (
	"fmt"

	"github.com/IntrovertedFL/runtipi/pkg/dispatch"
)

// Action represents a lifecycle action requested for an application.
type Action string

const (
	// ActionInstall provisions a new application.
	ActionInstall Action = "install"

	// ActionStart starts a stopped application.
	ActionStart Action = "start"

	// ActionStop stops a running application.
	ActionStop Action = "stop"

	// ActionUninstall removes an application's runtime artifacts.
	ActionUninstall Action = "uninstall"

	// ActionUpdate updates an application in place.
	ActionUpdate Action = "update"
)

// Validate checks if the action is valid.
func (a Action) Validate() error {
	switch a {
	case ActionInstall, ActionStart, ActionStop, ActionUninstall, ActionUpdate:
		return nil
	default:
		return fmt.Errorf("invalid action: %s", a)
	}
}

// Transition is a single allowed edge in the application state machine.
type Transition struct {
	From   AppStatus
	Action Action
	To     AppStatus
	Event  dispatch.EventType
}

// transitionsTable holds every allowed edge. A request whose current
// status and action have no row here fails with InvalidTransition and
// leaves the record untouched.
var transitionsTable = []Transition{
	// Install targets apps with no runtime artifact. The no-record case
	// is handled by the controller, which creates the record directly.
	{From: AppMissing, Action: ActionInstall, To: AppInstalling, Event: dispatch.EventTypeInstall},

	// Start/stop toggle between the two settled states.
	{From: AppStopped, Action: ActionStart, To: AppStarting, Event: dispatch.EventTypeStart},
	{From: AppRunning, Action: ActionStop, To: AppStopping, Event: dispatch.EventTypeStop},

	// Uninstall accepts stopped apps and missing ones (cleanup of a
	// half-removed install).
	{From: AppStopped, Action: ActionUninstall, To: AppUninstalling, Event: dispatch.EventTypeUninstall},
	{From: AppMissing, Action: ActionUninstall, To: AppUninstalling, Event: dispatch.EventTypeUninstall},

	// Update accepts both settled-and-present states. The runner decides
	// whether to restart the app afterwards.
	{From: AppStopped, Action: ActionUpdate, To: AppUpdating, Event: dispatch.EventTypeUpdate},
	{From: AppRunning, Action: ActionUpdate, To: AppUpdating, Event: dispatch.EventTypeUpdate},
}

// TransitionFor returns the allowed transition for a status+action pair.
func TransitionFor(from AppStatus, action Action) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Action == action {
			return tr, true
		}
	}
	return Transition{}, false
}
