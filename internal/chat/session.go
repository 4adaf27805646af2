package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/varsilias/chatbot/pkg/types"
)

var ErrEmptyMessage = errors.New("message is empty")

// EmitFunc receives each response delta as it arrives, before the next one
// is requested. A non-nil error aborts the turn.
type EmitFunc func(delta string) error

// Session is the conversation of one UI session. Submit and Reset are
// serialized, so turns never interleave and a log always alternates
// user/assistant except for a trailing user message whose turn failed.
type Session struct {
	id    string
	model string
	eng   Engine
	log   *slog.Logger

	// turn serializes Submit and Reset; mu guards the fields below it.
	turn    sync.Mutex
	mu      sync.RWMutex
	msgs    []types.Message
	updated time.Time
	active  time.Time
}

func NewSession(id, model string, eng Engine, log *slog.Logger) *Session {
	now := time.Now()
	return &Session{
		id:      id,
		model:   model,
		eng:     eng,
		log:     log.With("session", id),
		updated: now,
		active:  now,
	}
}

// Submit runs one turn: append the user message, stream the completion over
// the whole log, then append the accumulated assistant message. If the
// stream fails nothing is appended for the assistant and the partial text is
// dropped.
func (s *Session) Submit(ctx context.Context, text string, emit EmitFunc) (types.Message, error) {
	if strings.TrimSpace(text) == "" {
		return types.Message{}, ErrEmptyMessage
	}

	s.turn.Lock()
	defer s.turn.Unlock()

	history := s.push(types.NewMessage(types.RoleUser, text))

	start := time.Now()
	stream, err := s.eng.Stream(ctx, s.model, history)
	if err != nil {
		s.log.Error("open stream", "model", s.model, "err", err)
		return types.Message{}, fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	full, err := accumulate(stream, emit)
	if err != nil {
		s.log.Error("stream aborted", "model", s.model, "err", err)
		return types.Message{}, err
	}

	reply := types.NewMessage(types.RoleAssistant, full)
	s.push(reply)
	s.log.Debug("turn complete", "model", s.model, "chars", len(full), "latency_ms", time.Since(start).Milliseconds())
	return reply, nil
}

// accumulate folds the stream into one string, handing each delta to emit on
// the way.
func accumulate(stream Stream, emit EmitFunc) (string, error) {
	var b strings.Builder
	for stream.Next() {
		delta, ok := stream.Delta()
		if !ok {
			continue
		}
		b.WriteString(delta)
		if emit != nil {
			if err := emit(delta); err != nil {
				return "", fmt.Errorf("emit delta: %w", err)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}
	return b.String(), nil
}

// push adds m to the log and returns a copy of the log including it.
func (s *Session) push(m types.Message) []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
	s.updated = time.Now()
	s.active = s.updated
	return slices.Clone(s.msgs)
}

// Reset drops the conversation. It waits for a running turn to finish.
func (s *Session) Reset() {
	s.turn.Lock()
	defer s.turn.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = nil
	s.updated = time.Now()
	s.active = s.updated
}

// Messages returns a copy of the log in conversation order.
func (s *Session) Messages() []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.msgs)
}

func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// Updated is the time of the last change to the log.
func (s *Session) Updated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}

// Touch records a read of the session, e.g. a page load.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = time.Now()
}

// LastActive is the later of the last change and the last Touch.
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}
