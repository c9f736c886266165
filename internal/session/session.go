// Package session keeps conversation histories in memory.
//
// A session is owned by one turn at a time: Acquire hands out an exclusive
// lease and a second concurrent Acquire fails fast with
// errors.ErrSessionBusy. Sessions expire after a period of inactivity.
package session

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	domerrors "github.com/garyellow/ut-course-advisor/internal/errors"
	"github.com/garyellow/ut-course-advisor/internal/genai"
	"github.com/garyellow/ut-course-advisor/internal/metrics"
)

// Default settings.
const (
	DefaultTTL           = 2 * time.Hour
	DefaultMaxHistory    = 40
	DefaultCleanupPeriod = 5 * time.Minute
)

// Config configures a Store.
type Config struct {
	TTL           time.Duration
	MaxHistory    int // messages kept per session, rounded down to whole pairs; 0 = unlimited
	CleanupPeriod time.Duration
	Metrics       *metrics.Metrics
}

type session struct {
	history  []genai.Message
	busy     bool
	lastUsed time.Time
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session
	cfg      Config
	now      func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewStore creates a store and starts its expiry goroutine. Call Stop to
// release it.
func NewStore(cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	switch {
	case cfg.MaxHistory < 0:
		cfg.MaxHistory = 0
	case cfg.MaxHistory%2 == 1:
		// Whole user/assistant pairs.
		cfg.MaxHistory = max(cfg.MaxHistory-1, 2)
	}
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = DefaultCleanupPeriod
	}
	s := &Store{
		sessions: make(map[string]*session),
		cfg:      cfg,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Create starts an empty session and returns its id.
func (s *Store) Create() string {
	id := uuid.NewString()

	s.mu.Lock()
	s.sessions[id] = &session{lastUsed: s.now()}
	n := len(s.sessions)
	s.mu.Unlock()

	s.cfg.Metrics.SetActiveSessions(n)
	return id
}

// History returns a copy of the session's messages.
func (s *Store) History(id string) ([]genai.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(sess.history), nil
}

// Delete ends a session. A session with a turn in flight is reported busy.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	sess, err := s.lookup(id)
	if err == nil && sess.busy {
		err = domerrors.ErrSessionBusy
	}
	if err == nil {
		delete(s.sessions, id)
	}
	n := len(s.sessions)
	s.mu.Unlock()

	if err == nil {
		s.cfg.Metrics.SetActiveSessions(n)
	}
	return err
}

// Reset clears the history but keeps the id.
func (s *Store) Reset(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(id)
	if err != nil {
		return err
	}
	if sess.busy {
		return domerrors.ErrSessionBusy
	}
	sess.history = nil
	sess.lastUsed = s.now()
	return nil
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// lookup must be called with mu held.
func (s *Store) lookup(id string) (*session, error) {
	sess, ok := s.sessions[id]
	if !ok || s.expired(sess) {
		return nil, domerrors.ErrSessionNotFound
	}
	return sess, nil
}

func (s *Store) expired(sess *session) bool {
	return !sess.busy && s.now().Sub(sess.lastUsed) > s.cfg.TTL
}

// Lease is exclusive access to one session for the duration of a turn.
// Exactly one of Commit or Release must be called.
type Lease struct {
	store   *Store
	id      string
	history []genai.Message
	done    bool
}

// Acquire leases the session. It fails with errors.ErrSessionNotFound for
// unknown or expired ids and errors.ErrSessionBusy while another lease is
// held.
func (s *Store) Acquire(id string) (*Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if sess.busy {
		return nil, domerrors.ErrSessionBusy
	}
	sess.busy = true
	sess.lastUsed = s.now()
	return &Lease{store: s, id: id, history: slices.Clone(sess.history)}, nil
}

// ID returns the leased session id.
func (l *Lease) ID() string { return l.id }

// History returns the history as of Acquire. Callers must not modify it.
func (l *Lease) History() []genai.Message { return l.history }

// Commit appends messages to the history and releases the lease.
func (l *Lease) Commit(messages ...genai.Message) {
	l.finish(messages)
}

// Release gives the lease back and leaves the history unchanged.
func (l *Lease) Release() {
	l.finish(nil)
}

func (l *Lease) finish(messages []genai.Message) {
	if l.done {
		return
	}
	l.done = true

	s := l.store
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[l.id]
	if !ok {
		return
	}
	sess.busy = false
	sess.lastUsed = s.now()
	if len(messages) == 0 {
		return
	}
	sess.history = trimHistory(append(sess.history, messages...), s.cfg.MaxHistory)
}

// trimHistory keeps at most limit trailing messages and drops any leading
// non-user messages, so history always opens with a user turn.
func trimHistory(history []genai.Message, limit int) []genai.Message {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	kept := history[len(history)-limit:]
	start := slices.IndexFunc(kept, func(m genai.Message) bool { return m.Role == genai.RoleUser })
	if start < 0 {
		return nil
	}
	return slices.Clone(kept[start:])
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cfg.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup drops expired sessions and returns how many were removed.
func (s *Store) cleanup() int {
	s.mu.Lock()
	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, id)
			removed++
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	s.cfg.Metrics.SetActiveSessions(n)
	return removed
}

// Stop ends the expiry goroutine. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
