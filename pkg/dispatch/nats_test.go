package dispatch

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	natstest "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// setupTestNATS starts an embedded NATS server and a dispatcher against it
func setupTestNATS(t *testing.T) (*NATSDispatcher, *natsserver.Server) {
	t.Helper()

	opts := natstest.DefaultTestOptions
	opts.Port = -1 // random port
	server := natstest.RunServer(&opts)

	logger := zerolog.New(nil).Level(zerolog.Disabled)
	d, err := NewNATSDispatcher(NATSConfig{
		URL:           server.ClientURL(),
		SubjectPrefix: "tipi.events",
		Timeout:       2 * time.Second,
	}, logger)
	if err != nil {
		server.Shutdown()
		t.Fatalf("failed to create NATS dispatcher: %v", err)
	}

	return d, server
}

// TestNATSDispatch tests publish and envelope integrity over a live broker
func TestNATSDispatch(t *testing.T) {
	d, server := setupTestNATS(t)
	defer server.Shutdown()
	defer d.Close()

	// Independent subscriber connection.
	sub, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("failed to connect subscriber: %v", err)
	}
	defer sub.Close()

	received := make(chan *nats.Msg, 1)
	if _, err := sub.ChanSubscribe("tipi.events.install", received); err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}
	if err := sub.Flush(); err != nil {
		t.Fatalf("failed to flush subscription: %v", err)
	}

	event := NewEvent(EventTypeInstall, "calculator", nil)
	if err := d.Dispatch(context.Background(), event); err != nil {
		t.Fatalf("failed to dispatch: %v", err)
	}

	select {
	case msg := <-received:
		opened, err := OpenEnvelope(msg.Data)
		if err != nil {
			t.Fatalf("failed to open received envelope: %v", err)
		}
		if opened.ID != event.ID {
			t.Errorf("expected event ID %s, got %s", event.ID, opened.ID)
		}
		if opened.AppID != "calculator" {
			t.Errorf("expected app ID calculator, got %s", opened.AppID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

// TestNATSDispatchSubjectPerType tests that the subject carries the event type
func TestNATSDispatchSubjectPerType(t *testing.T) {
	d, server := setupTestNATS(t)
	defer server.Shutdown()
	defer d.Close()

	sub, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("failed to connect subscriber: %v", err)
	}
	defer sub.Close()

	received := make(chan *nats.Msg, 2)
	if _, err := sub.ChanSubscribe("tipi.events.>", received); err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}
	if err := sub.Flush(); err != nil {
		t.Fatalf("failed to flush subscription: %v", err)
	}

	ctx := context.Background()
	if err := d.Dispatch(ctx, NewEvent(EventTypeRestart, "", nil)); err != nil {
		t.Fatalf("failed to dispatch restart: %v", err)
	}
	if err := d.Dispatch(ctx, NewEvent(EventTypeStop, "app-1", nil)); err != nil {
		t.Fatalf("failed to dispatch stop: %v", err)
	}

	subjects := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case msg := <-received:
			subjects[msg.Subject] = true
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for published events")
		}
	}

	if !subjects["tipi.events.restart"] || !subjects["tipi.events.stop"] {
		t.Errorf("expected restart and stop subjects, got %v", subjects)
	}
}

// TestNATSDispatchAfterClose tests that a closed dispatcher refuses work
func TestNATSDispatchAfterClose(t *testing.T) {
	d, server := setupTestNATS(t)
	defer server.Shutdown()

	if err := d.Close(); err != nil {
		t.Fatalf("failed to close dispatcher: %v", err)
	}

	err := d.Dispatch(context.Background(), NewEvent(EventTypeStart, "app", nil))
	if err == nil {
		t.Error("expected dispatch on closed connection to fail")
	}
}
