package chat

import (
	"context"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/ssestream"

	"github.com/varsilias/chatbot/internal/llm"
	"github.com/varsilias/chatbot/pkg/types"
)

type OpenAIEngine struct {
	h *llm.Handle
}

// NewOpenAIEngine resolves the client through h on every call, so the
// connection is opened once and shared.
func NewOpenAIEngine(h *llm.Handle) *OpenAIEngine {
	return &OpenAIEngine{h: h}
}

func (e *OpenAIEngine) Stream(ctx context.Context, model string, history []types.Message) (Stream, error) {
	s, err := e.h.Get().StreamChat(ctx, model, history)
	if err != nil {
		return nil, err
	}
	return &openAIStream{stream: s}, nil
}

type openAIStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
}

func (s *openAIStream) Next() bool { return s.stream.Next() }

func (s *openAIStream) Delta() (string, bool) {
	chunk := s.stream.Current()
	if len(chunk.Choices) == 0 {
		return "", false
	}
	content := chunk.Choices[0].Delta.Content
	return content, content != ""
}

func (s *openAIStream) Err() error { return s.stream.Err() }

func (s *openAIStream) Close() error { return s.stream.Close() }
