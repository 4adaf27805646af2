package models

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varsilias/chatbot/internal/llm"
	"github.com/varsilias/chatbot/internal/llm/llmtest"
	"github.com/varsilias/chatbot/internal/logging"
)

func TestStaticManager(t *testing.T) {
	m := NewStaticManager("a", "b")

	items, err := m.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, items)

	items[0] = "mutated"
	again, _ := m.List(context.Background())
	assert.Equal(t, "a", again[0])

	require.NoError(t, m.Healthy(context.Background(), "b"))
	require.ErrorIs(t, m.Healthy(context.Background(), "c"), ErrUnknownModel)
}

func TestLLMManager(t *testing.T) {
	srv := llmtest.NewServer(t)
	srv.Models = []string{"gpt-test", "other"}
	m := NewLLMManager(llm.NewHandle(srv.Settings("gpt-test"), logging.Discard()))

	items, err := m.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-test", "other"}, items)

	require.NoError(t, m.Healthy(context.Background(), "gpt-test"))
	require.ErrorIs(t, m.Healthy(context.Background(), "missing"), ErrUnknownModel)
}

func TestLLMManager_Unreachable(t *testing.T) {
	srv := llmtest.NewServer(t)
	settings := srv.Settings("gpt-test")
	settings.Endpoint = "http://127.0.0.1:1/v1"
	m := NewLLMManager(llm.NewHandle(settings, logging.Discard()))

	require.Error(t, m.Healthy(context.Background(), "gpt-test"))
}

// flakyManager becomes healthy after a number of checks.
type flakyManager struct {
	calls   atomic.Int32
	healthy int32
}

func (m *flakyManager) List(context.Context) ([]string, error) { return nil, nil }

func (m *flakyManager) Healthy(context.Context, string) error {
	if m.calls.Add(1) >= m.healthy {
		return nil
	}
	return ErrUnknownModel
}

func TestWaitReady(t *testing.T) {
	m := &flakyManager{healthy: 3}
	err := WaitReady(context.Background(), m, "x", time.Millisecond, logging.Discard())
	require.NoError(t, err)
	assert.EqualValues(t, 3, m.calls.Load())
}

func TestWaitReady_Timeout(t *testing.T) {
	m := &flakyManager{healthy: 1 << 30}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := WaitReady(ctx, m, "x", 5*time.Millisecond, logging.Discard())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
