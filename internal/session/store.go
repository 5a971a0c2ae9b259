// Package session provides the in-memory conversation session registry.
// A session binds a messaging-platform user id to an opaque NLU context
// blob. The store owns all session state for the process lifetime and is
// safe for concurrent use.
package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/artofyoga/messenger-bot-go/internal/errors"
	"github.com/google/uuid"
)

// Session is per-conversation state keyed by an external user identifier.
// The context blob is produced and consumed only by the NLU engine; the
// store never interprets its contents.
type Session struct {
	Key    string // stable opaque key for the conversation
	UserID string // messaging-platform sender identifier

	context  json.RawMessage
	lastSeen time.Time
	turn     sync.Mutex // serializes conversation turns for this session
}

// Hooks receives store lifecycle notifications, typically wired to metrics.
type Hooks struct {
	OnCreate func()
	OnEvict  func(count int)
	OnUpdate func(live int)
}

// Store maps session keys to sessions with a direct index from user id to
// session key, so lookup by either is O(1).
type Store struct {
	mu      sync.RWMutex
	byKey   map[string]*Session
	byUser  map[string]string // externalUserID -> sessionKey
	idleTTL time.Duration
	hooks   Hooks
}

// NewStore creates an empty session store. Sessions idle longer than
// idleTTL become eligible for eviction by Sweep.
func NewStore(idleTTL time.Duration, hooks Hooks) *Store {
	return &Store{
		byKey:   make(map[string]*Session),
		byUser:  make(map[string]string),
		idleTTL: idleTTL,
		hooks:   hooks,
	}
}

// FindOrCreate returns the session for userID, creating one with a fresh
// key and empty context on first contact. Idempotent per user id.
func (s *Store) FindOrCreate(userID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.byUser[userID]; ok {
		sess := s.byKey[key]
		sess.lastSeen = time.Now()
		return sess
	}

	sess := &Session{
		Key:      uuid.NewString(),
		UserID:   userID,
		context:  json.RawMessage(`{}`),
		lastSeen: time.Now(),
	}
	s.byKey[sess.Key] = sess
	s.byUser[userID] = sess.Key

	if s.hooks.OnCreate != nil {
		s.hooks.OnCreate()
	}
	s.notifyUpdate()
	return sess
}

// Get returns the session for key, or ErrSessionNotFound.
func (s *Store) Get(key string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.byKey[key]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", key, apperrors.ErrSessionNotFound)
	}
	return sess, nil
}

// Context returns the current NLU context blob for key.
func (s *Store) Context(key string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.byKey[key]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", key, apperrors.ErrSessionNotFound)
	}
	return sess.context, nil
}

// UpdateContext replaces the session's context wholesale with the engine's
// returned value. The blob is stored as-is, never validated or inspected.
func (s *Store) UpdateContext(key string, newContext json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byKey[key]
	if !ok {
		return fmt.Errorf("session %s: %w", key, apperrors.ErrSessionNotFound)
	}
	if newContext == nil {
		newContext = json.RawMessage(`{}`)
	}
	sess.context = newContext
	sess.lastSeen = time.Now()
	return nil
}

// Do runs fn while holding the session's turn lock, so at most one
// conversation turn executes per session at a time. Concurrent deliveries
// for the same user queue up here instead of racing on the context blob.
func (s *Store) Do(key string, fn func() error) error {
	sess, err := s.Get(key)
	if err != nil {
		return err
	}

	sess.turn.Lock()
	defer sess.turn.Unlock()
	return fn()
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}

// Sweep evicts sessions idle longer than the store's TTL and returns the
// number evicted.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, sess := range s.byKey {
		if now.Sub(sess.lastSeen) > s.idleTTL {
			delete(s.byKey, key)
			delete(s.byUser, sess.UserID)
			evicted++
		}
	}

	if evicted > 0 {
		if s.hooks.OnEvict != nil {
			s.hooks.OnEvict(evicted)
		}
		s.notifyUpdate()
	}
	return evicted
}

// notifyUpdate must be called with mu held.
func (s *Store) notifyUpdate() {
	if s.hooks.OnUpdate != nil {
		s.hooks.OnUpdate(len(s.byKey))
	}
}
