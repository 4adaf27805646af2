package llm

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varsilias/chatbot/internal/llm/llmtest"
	"github.com/varsilias/chatbot/internal/logging"
	"github.com/varsilias/chatbot/pkg/types"
)

func TestClient_StreamChat(t *testing.T) {
	srv := llmtest.NewServer(t)
	srv.Script("Hel", "lo", "!")
	c := NewClient(srv.Settings("test-model"), logging.Discard())

	history := []types.Message{
		types.NewMessage(types.RoleUser, "hi"),
		types.NewMessage(types.RoleAssistant, "hey"),
		types.NewMessage(types.RoleUser, "say hello"),
	}
	stream, err := c.StreamChat(context.Background(), "test-model", history)
	require.NoError(t, err)
	defer stream.Close()

	var got strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 {
			got.WriteString(chunk.Choices[0].Delta.Content)
		}
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, "Hello!", got.String())

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "test-model", reqs[0].Model)
	assert.True(t, reqs[0].Stream)
	assert.Equal(t, "Bearer sk-test", reqs[0].Authorization)
	assert.Equal(t, []llmtest.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hey"},
		{Role: "user", Content: "say hello"},
	}, reqs[0].Messages)
}

func TestClient_StreamChatRejected(t *testing.T) {
	srv := llmtest.NewServer(t)
	srv.Reject(http.StatusUnauthorized)
	c := NewClient(srv.Settings("test-model"), logging.Discard())

	_, err := c.StreamChat(context.Background(), "test-model", []types.Message{types.NewMessage(types.RoleUser, "hi")})
	require.Error(t, err)
	assert.Len(t, srv.Requests(), 1, "no retries")
}

func TestClient_StreamChatUnknownRole(t *testing.T) {
	srv := llmtest.NewServer(t)
	c := NewClient(srv.Settings("test-model"), logging.Discard())

	_, err := c.StreamChat(context.Background(), "test-model", []types.Message{{Role: "system", Content: "x"}})
	require.ErrorContains(t, err, "unsupported role")
	assert.Empty(t, srv.Requests())
}

func TestClient_ModelsAndPing(t *testing.T) {
	srv := llmtest.NewServer(t)
	srv.Models = []string{"a", "b"}
	c := NewClient(srv.Settings("a"), logging.Discard())

	require.NoError(t, c.Ping(context.Background()))
	ids, err := c.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestHandle_ReturnsSameClient(t *testing.T) {
	srv := llmtest.NewServer(t)
	h := NewHandle(srv.Settings("m"), logging.Discard())

	first := h.Get()
	require.NotNil(t, first)
	for range 5 {
		assert.Same(t, first, h.Get())
	}
}
