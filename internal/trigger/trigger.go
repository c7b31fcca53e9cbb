// Package trigger holds the single-slot explicit-capture token.
//
// A token is created by a deliberate user action ("snaplens snip", an IPC
// ARM request, or an external UI writing the settings file) and marks the
// next new clipboard image as user-initiated regardless of process timing.
// The slot holds at most one token: arming replaces any previous token, and
// Consume atomically takes and clears it so two events can never ride one
// action.
package trigger

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Token is one explicit capture authorisation.
type Token struct {
	ID      string
	ArmedAt time.Time
}

// Store is the single-slot token holder. The zero value is ready to use.
type Store struct {
	mu  sync.Mutex
	tok *Token
}

// Arm places a token in the slot, replacing any previous one, and returns
// it. An empty id gets a fresh uuid.
func (s *Store) Arm(id string) Token {
	if id == "" {
		id = uuid.NewString()
	}
	t := Token{ID: id, ArmedAt: time.Now()}
	s.mu.Lock()
	s.tok = &t
	s.mu.Unlock()
	return t
}

// Consume atomically takes the token, leaving the slot empty. Exactly one
// caller observes any given token.
func (s *Store) Consume() (Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tok == nil {
		return Token{}, false
	}
	t := *s.tok
	s.tok = nil
	return t, true
}

// Armed reports whether a token is waiting, without consuming it.
func (s *Store) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tok != nil
}
