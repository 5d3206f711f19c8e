package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const defaultTTL = 30 * time.Minute

// Manager creates, loads and saves sessions against a Store. Expiry is
// sliding: every Save pushes it out by the TTL.
type Manager struct {
	store Store
	ttl   time.Duration
	clock func() time.Time
	log   log.FieldLogger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) { m.clock = clock }
}

func WithLogger(logger log.FieldLogger) ManagerOption {
	return func(m *Manager) { m.log = logger }
}

func NewManager(store Store, ttl time.Duration, opts ...ManagerOption) *Manager {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	m := &Manager{
		store: store,
		ttl:   ttl,
		clock: time.Now,
		log:   log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.WithField("component", "session")
	return m
}

// Start creates and stores a new anonymous session.
func (m *Manager) Start(ctx context.Context) (*Session, error) {
	s := New(uuid.NewString(), m.clock, m.log)
	if err := m.Save(ctx, s); err != nil {
		return nil, err
	}
	m.log.WithField("session", s.Token).Info("session created")
	return s, nil
}

// Load fetches the session for token. Sessions idle for longer than the TTL
// are removed and reported as ErrExpired.
func (m *Manager) Load(ctx context.Context, token string) (*Session, error) {
	data, err := m.store.Load(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	s.attach(m.clock, m.log)

	if m.clock().Sub(s.LastAccess) > m.ttl {
		if err := m.store.Delete(ctx, token); err != nil {
			m.log.WithError(err).WithField("session", token).Warn("delete expired session failed")
		}
		m.log.WithField("session", token).Debug("session expired")
		return nil, ErrExpired
	}
	m.log.WithField("session", token).Debug("session activated")
	return &s, nil
}

// Save writes s back to the store.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := m.store.Save(ctx, s.Token, data, m.ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	m.log.WithField("session", s.Token).Debug("session passivated")
	return nil
}

// End removes the session for token. Ending an unknown session succeeds.
func (m *Manager) End(ctx context.Context, token string) error {
	if err := m.store.Delete(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	m.log.WithField("session", token).Info("session removed")
	return nil
}
