package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/varsilias/chatbot/internal/chat"
	"github.com/varsilias/chatbot/pkg/types"
)

var ErrEmptyID = errors.New("empty session id")

// Store hands out chats by session ID. Session and Lookup count as activity
// and keep a chat from being evicted.
type Store interface {
	// Session returns the chat for id, creating an empty one on first use.
	Session(id string) (*chat.Session, error)
	// Lookup returns the chat for id without creating it.
	Lookup(id string) (*chat.Session, bool)
	Drop(id string) bool
	List() []Summary
}

// MemoryStore keeps one chat per session ID for the life of the process.
type MemoryStore struct {
	model string
	eng   chat.Engine
	log   *slog.Logger

	mu   sync.RWMutex
	data map[string]*chat.Session
}

func NewMemoryStore(model string, eng chat.Engine, log *slog.Logger) *MemoryStore {
	return &MemoryStore{
		model: model,
		eng:   eng,
		log:   log,
		data:  make(map[string]*chat.Session),
	}
}

func (s *MemoryStore) Session(id string) (*chat.Session, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	if cs, ok := s.Lookup(id); ok {
		return cs, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cs, ok := s.data[id]; ok {
		cs.Touch()
		return cs, nil
	}
	cs := chat.NewSession(id, s.model, s.eng, s.log)
	s.data[id] = cs
	s.log.Debug("session started", "session", id)
	return cs, nil
}

// Lookup touches the chat while holding the store lock, so a concurrent Evict
// either removes it before the lookup or sees it as active.
func (s *MemoryStore) Lookup(id string) (*chat.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.data[id]
	if ok {
		cs.Touch()
	}
	return cs, ok
}

// Drop removes the chat for id and reports whether there was one.
func (s *MemoryStore) Drop(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[id]
	delete(s.data, id)
	if ok {
		s.log.Debug("session dropped", "session", id)
	}
	return ok
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict drops sessions that have been neither changed nor read for longer
// than idle and returns how many went.
func (s *MemoryStore) Evict(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, cs := range s.data {
		if cs.LastActive().Before(cutoff) {
			delete(s.data, id)
			n++
		}
	}
	if n > 0 {
		s.log.Info("sessions evicted", "count", n, "remaining", len(s.data))
	}
	return n
}

// Janitor evicts idle sessions every interval until ctx is done.
func (s *MemoryStore) Janitor(ctx context.Context, interval, idle time.Duration) {
	if interval <= 0 || idle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Evict(idle)
		}
	}
}

// NewID returns a fresh random session ID.
func NewID() string { return uuid.NewString() }

// Summary is a lightweight view of a session for listings.
type Summary struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages int       `json:"messages"`
	Updated  time.Time `json:"updated"`
}

// List summarizes every session, most recently changed first. Listing does
// not count as activity.
func (s *MemoryStore) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.data))
	for id, cs := range s.data {
		msgs := cs.Messages()
		out = append(out, Summary{ID: id, Title: titleFrom(msgs), Messages: len(msgs), Updated: cs.Updated()})
	}
	slices.SortFunc(out, func(a, b Summary) int {
		if c := b.Updated.Compare(a.Updated); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func titleFrom(msgs []types.Message) string {
	for _, m := range msgs {
		if m.Role == types.RoleUser {
			return clip(words(m.Content), 8)
		}
	}
	return ""
}

func words(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	parts := strings.Fields(s)
	if len(parts) <= 12 {
		return strings.Join(parts, " ")
	}
	return strings.Join(parts[:12], " ")
}

// clip shortens s to about n*2 runes.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n*2 {
		return s
	}
	return string(r[:n*2]) + "…"
}
