package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/varsilias/chatbot/pkg/types"
)

// Engine is the completion capability a Session talks to.
type Engine interface {
	// Stream requests a completion over history. The returned Stream is
	// single-pass; the caller closes it.
	Stream(ctx context.Context, model string, history []types.Message) (Stream, error)
}

// Stream is a forward-only sequence of response deltas. Next blocks until the
// next delta arrives, the sequence ends or it fails.
type Stream interface {
	Next() bool
	// Delta returns the current fragment. ok is false when the underlying
	// chunk carried no text.
	Delta() (delta string, ok bool)
	Err() error
	Close() error
}

// EchoEngine answers without a network, word by word. It backs the demo mode
// and UI tests.
type EchoEngine struct {
	delay time.Duration
}

func NewEchoEngine(delay time.Duration) *EchoEngine { return &EchoEngine{delay: delay} }

func (e *EchoEngine) Stream(ctx context.Context, model string, history []types.Message) (Stream, error) {
	var prompt string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == types.RoleUser {
			prompt = history[i].Content
			break
		}
	}
	text := fmt.Sprintf("(demo:%s) you said: %s", model, prompt)
	return &sliceStream{ctx: ctx, frags: strings.SplitAfter(text, " "), delay: e.delay}, nil
}

type sliceStream struct {
	ctx   context.Context
	frags []string
	delay time.Duration
	next  int
	cur   string
	err   error
}

func (s *sliceStream) Next() bool {
	if s.err != nil || s.next >= len(s.frags) {
		return false
	}
	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		select {
		case <-s.ctx.Done():
			t.Stop()
			s.err = s.ctx.Err()
			return false
		case <-t.C:
		}
	} else if err := s.ctx.Err(); err != nil {
		s.err = err
		return false
	}
	s.cur = s.frags[s.next]
	s.next++
	return true
}

func (s *sliceStream) Delta() (string, bool) { return s.cur, s.cur != "" }

func (s *sliceStream) Err() error { return s.err }

func (s *sliceStream) Close() error { return nil }
