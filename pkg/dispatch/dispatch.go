// Package dispatch hands lifecycle intents to the external runner. Delivery
// is fire-and-forget: Dispatch returns once the intent is durably recorded
// with the chosen engine, and no engine reports execution outcomes back.
// Outcomes arrive through the status store or the settlement watcher.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Source identifies this process as the CloudEvents producer.
const Source = "runtipi/core"

// EventType represents the kind of lifecycle intent being dispatched.
type EventType string

const (
	// EventTypeInstall requests installation of an application.
	EventTypeInstall EventType = "install"

	// EventTypeUninstall requests removal of an application.
	EventTypeUninstall EventType = "uninstall"

	// EventTypeStart requests starting an installed application.
	EventTypeStart EventType = "start"

	// EventTypeStop requests stopping a running application.
	EventTypeStop EventType = "stop"

	// EventTypeUpdate requests an update. With an app ID it targets that
	// application, without one it targets the platform itself.
	EventTypeUpdate EventType = "update"

	// EventTypeRestart requests a platform restart.
	EventTypeRestart EventType = "restart"
)

// Validate checks if the event type is valid.
func (t EventType) Validate() error {
	switch t {
	case EventTypeInstall, EventTypeUninstall, EventTypeStart,
		EventTypeStop, EventTypeUpdate, EventTypeRestart:
		return nil
	default:
		return fmt.Errorf("invalid event type: %s", t)
	}
}

// Event is a single lifecycle intent addressed to the runner.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the lifecycle action requested.
	Type EventType `json:"type"`

	// AppID is the target application, empty for platform-level events.
	AppID string `json:"app_id,omitempty"`

	// Payload is an opaque JSON document forwarded to the runner verbatim.
	Payload json.RawMessage `json:"payload,omitempty"`

	// DispatchedAt is when the intent was handed to the engine.
	DispatchedAt time.Time `json:"dispatched_at"`
}

// NewEvent creates an event with a fresh time-ordered ID.
func NewEvent(eventType EventType, appID string, payload json.RawMessage) Event {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return Event{
		ID:           id.String(),
		Type:         eventType,
		AppID:        appID,
		Payload:      payload,
		DispatchedAt: time.Now().UTC(),
	}
}

// Dispatcher records lifecycle intents for the runner to pick up.
type Dispatcher interface {
	// Dispatch records the event and returns. A nil error means the intent
	// was accepted, not that the runner acted on it.
	Dispatch(ctx context.Context, event Event) error

	// Close releases engine resources.
	Close() error
}

// Envelope wraps the event in a CloudEvents v1 JSON envelope. The runner
// consumes the envelope; the raw Event struct is carried as its data.
func Envelope(event Event) ([]byte, error) {
	if err := event.Type.Validate(); err != nil {
		return nil, err
	}

	ce := cloudevents.NewEvent()
	ce.SetID(event.ID)
	ce.SetSource(Source)
	ce.SetType("tipi.lifecycle." + string(event.Type))
	ce.SetTime(event.DispatchedAt)
	ce.SetSpecVersion(cloudevents.VersionV1)
	if event.AppID != "" {
		ce.SetSubject(event.AppID)
	}
	if err := ce.SetData(cloudevents.ApplicationJSON, event); err != nil {
		return nil, fmt.Errorf("failed to set event data: %w", err)
	}

	raw, err := json.Marshal(ce)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return raw, nil
}

// OpenEnvelope parses a CloudEvents envelope back into the carried Event.
func OpenEnvelope(raw []byte) (Event, error) {
	var ce cloudevents.Event
	if err := json.Unmarshal(raw, &ce); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	var event Event
	if err := json.Unmarshal(ce.Data(), &event); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event data: %w", err)
	}
	if err := event.Type.Validate(); err != nil {
		return Event{}, err
	}
	return event, nil
}
