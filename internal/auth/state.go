// Package auth holds the client's authentication state: a session token
// persisted to a file, and a stream of sign-in/sign-out transitions.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hyperengineering/smartshop/internal/broadcast"
	"github.com/hyperengineering/smartshop/internal/types"
)

// ErrNotSignedIn is returned when an operation requires a session.
var ErrNotSignedIn = errors.New("not signed in")

// Session is the persisted result of a login.
type Session struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionFromToken builds a Session from a login response.
func SessionFromToken(t *types.TokenResponse) Session {
	return Session{Token: t.Token, Email: t.Email, UserID: t.UserID, ExpiresAt: t.ExpiresAt}
}

// State tracks whether a user is signed in. It is safe for concurrent use.
type State struct {
	path string
	now  func() time.Time

	// mu orders session changes with transition emissions so a subscriber's
	// first value is never older than a later transition.
	mu      sync.Mutex
	session *Session
	hub     *broadcast.Hub[bool]

	// expiry publishes the sign-out transition when the session lapses.
	expiry *time.Timer
}

// NewState loads the session stored at path, if any.
func NewState(path string) (*State, error) {
	s := &State{
		path: path,
		now:  time.Now,
		hub:  broadcast.New[bool](),
	}

	sess, err := readSession(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.session = sess
	s.armExpiryLocked()
	s.mu.Unlock()
	return s, nil
}

// Path returns the session file location.
func (s *State) Path() string {
	return s.path
}

// SignIn persists sess and publishes a sign-in transition. A session that
// has already expired publishes a sign-out instead.
func (s *State) SignIn(sess Session) error {
	if sess.Token == "" {
		return errors.New("session token is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeSession(s.path, sess); err != nil {
		return err
	}
	s.session = &sess
	s.armExpiryLocked()
	s.hub.Publish(s.validLocked())
	return nil
}

// SignOut removes the stored session and publishes a sign-out transition.
// Signing out while signed out is a no-op.
func (s *State) SignOut() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session: %w", err)
	}
	if s.session == nil {
		return nil
	}
	s.session = nil
	s.armExpiryLocked()
	s.hub.Publish(false)
	return nil
}

// SignedIn reports whether an unexpired session is present.
func (s *State) SignedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validLocked()
}

// Token returns the current bearer token, or "" when signed out.
func (s *State) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validLocked() {
		return ""
	}
	return s.session.Token
}

// Session returns a copy of the current session.
func (s *State) Session() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validLocked() {
		return nil, ErrNotSignedIn
	}
	sess := *s.session
	return &sess, nil
}

// Subscribe returns a channel that receives the current state immediately
// and every transition after it: true on sign-in, false on sign-out. A slow
// reader only sees the latest state. The channel closes when ctx ends.
func (s *State) Subscribe(ctx context.Context) <-chan bool {
	s.mu.Lock()
	ch := s.hub.Subscribe()
	broadcast.Offer(ch, s.validLocked())
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.hub.Unsubscribe(ch)
	}()

	return ch
}

// Reload re-reads the session file and publishes a transition if the
// session changed underneath us.
func (s *State) Reload() error {
	sess, err := readSession(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case sess == nil && s.session == nil:
		return nil
	case sess != nil && s.session != nil && sess.Token == s.session.Token:
		return nil
	}

	s.session = sess
	s.armExpiryLocked()
	s.hub.Publish(s.validLocked())
	return nil
}

// Close stops the expiry timer. Subscribers stay open until their context
// ends.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
}

// armExpiryLocked replaces the expiry timer with one for the current
// session. Sessions without an expiry never lapse.
func (s *State) armExpiryLocked() {
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
	if s.session == nil || s.session.ExpiresAt.IsZero() {
		return
	}

	sess := s.session
	s.expiry = time.AfterFunc(time.Until(sess.ExpiresAt), func() {
		s.expire(sess)
	})
}

// expire publishes a sign-out transition if sess is still the current
// session and has lapsed.
func (s *State) expire(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != sess || s.validLocked() {
		return
	}
	s.expiry = nil
	s.hub.Publish(false)
}

func (s *State) validLocked() bool {
	if s.session == nil || s.session.Token == "" {
		return false
	}
	if !s.session.ExpiresAt.IsZero() && !s.now().Before(s.session.ExpiresAt) {
		return false
	}
	return true
}

func readSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", path, err)
	}
	if sess.Token == "" {
		return nil, nil
	}
	return &sess, nil
}

// writeSession replaces the session file atomically so watchers never read
// a partial write.
func writeSession(path string, sess Session) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("create temp session: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close session: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod session: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace session: %w", err)
	}
	return nil
}
