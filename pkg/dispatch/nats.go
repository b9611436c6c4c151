package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/IntrovertedFL/runtipi/pkg/telemetry"
)

// NATSConfig holds NATS dispatcher configuration.
type NATSConfig struct {
	// URL is the NATS server address.
	URL string

	// SubjectPrefix is prepended to the event type to form the publish
	// subject, e.g. "tipi.events" yields "tipi.events.install".
	SubjectPrefix string

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
	PingInterval  time.Duration
}

// NATSDispatcher publishes enveloped events to a NATS subject per event
// type. Core NATS delivery is at-most-once, which matches the dispatch
// contract: acceptance by the broker, nothing about execution.
type NATSDispatcher struct {
	conn    *nats.Conn
	config  NATSConfig
	logger  zerolog.Logger
	ownConn bool
}

// NewNATSDispatcher connects to NATS and returns a dispatcher.
func NewNATSDispatcher(cfg NATSConfig, logger zerolog.Logger) (*NATSDispatcher, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "tipi.events"
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = 10
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 20 * time.Second
	}

	log := logger.With().Str("component", "dispatch").Str("engine", "nats").Logger()

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.PingInterval(cfg.PingInterval),
		nats.MaxPingsOutstanding(3),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("Disconnected from NATS")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSDispatcher{
		conn:    conn,
		config:  cfg,
		logger:  log,
		ownConn: true,
	}, nil
}

// Dispatch publishes the enveloped event and flushes the connection.
func (d *NATSDispatcher) Dispatch(ctx context.Context, event Event) error {
	return telemetry.RecordDispatch(ctx, "nats", string(event.Type), func(context.Context) error {
		return d.publish(event)
	})
}

func (d *NATSDispatcher) publish(event Event) error {
	if d.conn == nil {
		return fmt.Errorf("NATS connection not established")
	}

	raw, err := Envelope(event)
	if err != nil {
		return fmt.Errorf("failed to envelope event: %w", err)
	}

	subject := d.config.SubjectPrefix + "." + string(event.Type)
	if err := d.conn.Publish(subject, raw); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}

	// Flush so acceptance by the broker is confirmed before returning.
	if err := d.conn.FlushTimeout(d.config.Timeout); err != nil {
		return fmt.Errorf("failed to flush after publish: %w", err)
	}

	d.logger.Debug().
		Str("event_id", event.ID).
		Str("subject", subject).
		Str("app_id", event.AppID).
		Msg("Event published")

	return nil
}

// Close drains and closes the NATS connection.
func (d *NATSDispatcher) Close() error {
	if d.conn != nil && d.ownConn {
		d.conn.Close()
	}
	return nil
}
