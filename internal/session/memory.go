package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"raggate/pkg/types"
)

const (
	defaultTTL           = 24 * time.Hour
	defaultSweepInterval = 10 * time.Minute
)

type memSession struct {
	messages []types.ChatMessage
	expires  time.Time
}

// MemoryStore keeps sessions in process memory. Sessions expire after a
// TTL that is refreshed on every append; a background janitor sweeps
// expired entries.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memSession
	ttl      time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

// NewMemoryStore returns a store with the given TTL (zero means 24h) and
// starts its expiry janitor.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	s := &MemoryStore{
		sessions: make(map[string]*memSession),
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	go s.janitor(defaultSweepInterval)
	return s
}

func (s *MemoryStore) Create(ctx context.Context) (string, error) {
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = &memSession{expires: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	return id, nil
}

func (s *MemoryStore) History(ctx context.Context, sessionID string) ([]types.ChatMessage, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok || time.Now().After(sess.expires) {
		return nil, ErrNotFound
	}
	out := make([]types.ChatMessage, len(sess.messages))
	copy(out, sess.messages)
	return out, nil
}

func (s *MemoryStore) Append(ctx context.Context, sessionID string, msgs ...types.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || time.Now().After(sess.expires) {
		sess = &memSession{}
		s.sessions[sessionID] = sess
	}
	sess.messages = append(sess.messages, msgs...)
	sess.expires = time.Now().Add(s.ttl)
	return nil
}

// Close stops the janitor. The store remains usable afterwards but no
// longer sweeps expired sessions.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryStore) janitor(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			now := time.Now()
			s.mu.Lock()
			for id, sess := range s.sessions {
				if now.After(sess.expires) {
					delete(s.sessions, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
