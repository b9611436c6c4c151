// Package sessions manages opaque session identifiers backed by the
// ephemeral cache.
//
// A session maps an opaque identifier to a user identifier with a TTL
// enforced by the cache. Rotation issues a fresh identifier with the
// full TTL and re-arms the old entry with a short grace TTL instead of
// deleting it, so requests that captured the old token just before
// rotation still resolve during the grace window.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/IntrovertedFL/runtipi/pkg/cache"
)

const (
	// DefaultTTL is the lifetime of a freshly issued session.
	DefaultTTL = 24 * time.Hour

	// DefaultGraceTTL is how long a rotated-out session stays valid.
	DefaultGraceTTL = 5 * time.Second

	keyPrefix = "session:"
)

// ErrNotFound indicates the session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// Config holds session manager configuration.
type Config struct {
	// TTL is the lifetime of a new session.
	TTL time.Duration `yaml:"ttl"`

	// GraceTTL is the dual-validity window after rotation.
	GraceTTL time.Duration `yaml:"grace_ttl"`
}

// Manager issues, resolves, rotates and revokes sessions.
type Manager struct {
	cache  cache.Cache
	ttl    time.Duration
	grace  time.Duration
	logger zerolog.Logger
}

// NewManager creates a session manager on top of the given cache.
func NewManager(cfg Config, c cache.Cache, logger zerolog.Logger) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.GraceTTL <= 0 {
		cfg.GraceTTL = DefaultGraceTTL
	}

	return &Manager{
		cache:  c,
		ttl:    cfg.TTL,
		grace:  cfg.GraceTTL,
		logger: logger.With().Str("component", "sessions").Logger(),
	}
}

// Create issues a new session for the given user.
func (m *Manager) Create(ctx context.Context, userID string) (string, error) {
	id := newSessionID()

	if err := m.cache.Set(ctx, keyPrefix+id, userID, m.ttl); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	m.logger.Debug().
		Str("user_id", userID).
		Msg("Session created")

	return id, nil
}

// Resolve returns the user a session belongs to. Expired and unknown
// sessions are indistinguishable.
func (m *Manager) Resolve(ctx context.Context, sessionID string) (string, error) {
	value, found, err := m.cache.Get(ctx, keyPrefix+sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to look up session: %w", err)
	}
	if !found {
		return "", ErrNotFound
	}
	return value, nil
}

// Refresh rotates a session. The new identifier carries the full TTL;
// the old one is re-armed with the grace TTL so in-flight requests
// holding it stay valid during rotation.
func (m *Manager) Refresh(ctx context.Context, sessionID string) (string, error) {
	userID, err := m.Resolve(ctx, sessionID)
	if err != nil {
		return "", err
	}

	newID := newSessionID()
	if err := m.cache.Set(ctx, keyPrefix+newID, userID, m.ttl); err != nil {
		return "", fmt.Errorf("failed to store rotated session: %w", err)
	}

	if err := m.cache.Set(ctx, keyPrefix+sessionID, userID, m.grace); err != nil {
		// The new session is already live. The old one keeps its
		// previous TTL instead of the shorter grace window.
		m.logger.Warn().Err(err).Msg("Failed to re-arm rotated session")
	}

	m.logger.Debug().
		Str("user_id", userID).
		Msg("Session rotated")

	return newID, nil
}

// Revoke deletes a session immediately.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	if err := m.cache.Delete(ctx, keyPrefix+sessionID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// newSessionID returns a time-ordered identifier, falling back to a
// random one if the clock is unusable.
func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
