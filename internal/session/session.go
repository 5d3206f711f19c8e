// Package session tracks who is logged in for a client between requests.
//
// A Session is a plain value: it is loaded from a Store at the start of a
// request, mutated by the handler and saved back at the end.
package session

import (
	"context"
	"time"

	"github.com/boatfuel/fueltracker/internal/txn"
	"github.com/boatfuel/fueltracker/types"
	log "github.com/sirupsen/logrus"
)

// State is the login state of a session.
type State int

const (
	Anonymous State = iota
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Session holds the current user for one client. It is not safe for
// concurrent mutation; callers handle one request per session at a time.
type Session struct {
	Token      string      `json:"token"`
	User       *types.User `json:"user,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	LastAccess time.Time   `json:"last_access"`

	clock func() time.Time
	log   log.FieldLogger
}

// New returns an anonymous session created now.
func New(token string, clock func() time.Time, logger log.FieldLogger) *Session {
	s := &Session{Token: token}
	s.attach(clock, logger)
	now := s.clock()
	s.CreatedAt = now
	s.LastAccess = now
	return s
}

// attach wires runtime collaborators into a session decoded from a store.
func (s *Session) attach(clock func() time.Time, logger log.FieldLogger) {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	s.clock = clock
	s.log = logger.WithField("session", s.Token)
}

func (s *Session) State() State {
	if s.User == nil {
		return Anonymous
	}
	return Authenticated
}

// SetCurrentUser marks the session authenticated as u. A nil user logs out.
func (s *Session) SetCurrentUser(u *types.User) {
	if u == nil {
		s.Logout()
		return
	}
	snapshot := *u
	snapshot.PasswordHash = ""
	s.User = &snapshot
	s.touch()
	s.log.WithField("user_id", snapshot.ID).Info("session user set")
}

// CurrentUser returns a copy of the logged-in user and refreshes the last
// access time, whether or not anyone is logged in.
func (s *Session) CurrentUser() (*types.User, bool) {
	s.touch()
	if s.User == nil {
		return nil, false
	}
	u := *s.User
	return &u, true
}

func (s *Session) IsLoggedIn() bool {
	return s.User != nil
}

// Logout returns the session to Anonymous. Logging out an anonymous session
// is a no-op.
func (s *Session) Logout() {
	if s.User == nil {
		return
	}
	s.log.WithField("user_id", s.User.ID).Info("session user logged out")
	s.User = nil
}

func (s *Session) LastAccessTime() time.Time {
	return s.LastAccess
}

// touch moves LastAccess forward; it never goes backwards.
func (s *Session) touch() {
	now := s.clock()
	if now.After(s.LastAccess) {
		s.LastAccess = now
	}
}

func (s *Session) OnTransactionBegin(context.Context) {
	s.log.Debug("transaction started")
}

func (s *Session) OnBeforeCommit(context.Context) {
	s.log.Debug("transaction about to commit")
}

func (s *Session) OnAfterCommit(_ context.Context, committed bool) {
	if committed {
		s.log.Debug("transaction committed")
		return
	}
	s.log.Debug("transaction rolled back")
}

// Hooks exposes the session's transaction callbacks for txn.WithHooks.
func (s *Session) Hooks() txn.Hooks {
	return txn.Hooks{
		Begin:        s.OnTransactionBegin,
		BeforeCommit: s.OnBeforeCommit,
		AfterCommit:  s.OnAfterCommit,
	}
}
