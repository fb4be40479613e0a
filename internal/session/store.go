// Package session keeps the per-chat login state in memory.
package session

import (
	"sync"

	domerrors "github.com/garyellow/moodle-linebot-go/internal/errors"
	"github.com/garyellow/moodle-linebot-go/internal/moodle"
)

// Session is the state of one chat. A zero Session is logged out.
type Session struct {
	LoggedIn    bool
	UserID      int64
	DisplayName string
	Courses     moodle.Catalog
}

// Account returns what topic queries need from a logged-in session.
func (s Session) Account() moodle.Account {
	return moodle.Account{UserID: s.UserID, Courses: s.Courses}
}

// Store tracks sessions per key (chat id). Sessions are created lazily,
// never expire and are lost on restart.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// entry holds one session. turn is held for a whole dialogue turn; mu only
// while the state is read or written.
type entry struct {
	turn  sync.Mutex
	mu    sync.Mutex
	state Session
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// getOrCreate returns the entry for key, creating it on first use.
func (s *Store) getOrCreate(key string) *entry {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Double-check after acquiring write lock
	if e, ok = s.entries[key]; ok {
		return e
	}
	e = &entry{}
	s.entries[key] = e
	return e
}

// Get returns a snapshot of the session, creating a logged-out one if needed.
func (s *Store) Get(key string) Session {
	e := s.getOrCreate(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// MarkLoggedIn records the identity and clears any cached courses.
func (s *Store) MarkLoggedIn(key string, id moodle.Identity) {
	e := s.getOrCreate(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Session{
		LoggedIn:    true,
		UserID:      id.UserID,
		DisplayName: id.FirstName,
	}
}

// CacheCourses replaces the course list of a logged-in session.
// Returns errors.ErrNotLoggedIn if MarkLoggedIn was not called first.
func (s *Store) CacheCourses(key string, courses moodle.Catalog) error {
	e := s.getOrCreate(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.LoggedIn {
		return domerrors.ErrNotLoggedIn
	}
	e.state.Courses = courses
	return nil
}

// Reset returns the session to the logged-out default.
func (s *Store) Reset(key string) {
	e := s.getOrCreate(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Session{}
}

// Lock serializes turns for one key and returns the matching unlock.
// Other keys are not affected.
func (s *Store) Lock(key string) (unlock func()) {
	e := s.getOrCreate(key)
	e.turn.Lock()
	return e.turn.Unlock
}

// Len returns the number of sessions held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
