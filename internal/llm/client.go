// Package llm owns the connection to the OpenAI-compatible completion
// endpoint. A process creates one Client through a Handle and shares it
// between all chat sessions.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"

	"github.com/varsilias/chatbot/internal/config"
	"github.com/varsilias/chatbot/pkg/types"
)

type Client struct {
	api      openai.Client
	log      *slog.Logger
	endpoint string
}

// NewClient builds a client for the endpoint in s. Extra options are applied
// last, so tests can swap the HTTP client.
func NewClient(s config.Settings, log *slog.Logger, opts ...option.RequestOption) *Client {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(s.Credential.Reveal()),
		// no total timeout: a stream lives as long as the request context
		option.WithHTTPClient(&http.Client{}),
		option.WithMaxRetries(0),
	}
	if s.Endpoint != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(s.Endpoint))
	}
	reqOpts = append(reqOpts, opts...)

	return &Client{
		api:      openai.NewClient(reqOpts...),
		log:      log,
		endpoint: s.Endpoint,
	}
}

// Ping checks the endpoint answers an authenticated request.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.Models.List(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", c.endpointName(), err)
	}
	return nil
}

// Models lists the model IDs the endpoint serves.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	page, err := c.api.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	out := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		out = append(out, m.ID)
	}
	return out, nil
}

// StreamChat starts a streamed chat completion over history. The caller
// drains and closes the returned stream.
func (c *Client) StreamChat(ctx context.Context, model string, history []types.Message) (*ssestream.Stream[openai.ChatCompletionChunk], error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, m := range history {
		p, err := toMessageParam(m)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, p)
	}

	c.log.Debug("stream chat", "model", model, "messages", len(msgs), "endpoint", c.endpointName())
	stream := c.api.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
	})
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, err
	}
	return stream, nil
}

func (c *Client) endpointName() string {
	if c.endpoint == "" {
		return "default"
	}
	return c.endpoint
}

func toMessageParam(m types.Message) (openai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case types.RoleUser:
		return openai.UserMessage(m.Content), nil
	case types.RoleAssistant:
		return openai.AssistantMessage(m.Content), nil
	default:
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unsupported role: %q", m.Role)
	}
}

// Handle creates the Client on first use and returns the same instance on
// every later call.
type Handle struct {
	once     sync.Once
	settings config.Settings
	log      *slog.Logger
	opts     []option.RequestOption
	client   *Client
}

func NewHandle(s config.Settings, log *slog.Logger, opts ...option.RequestOption) *Handle {
	return &Handle{settings: s, log: log, opts: opts}
}

func (h *Handle) Get() *Client {
	h.once.Do(func() {
		h.client = NewClient(h.settings, h.log, h.opts...)
		h.log.Info("completion client ready", "endpoint", h.client.endpointName())
	})
	return h.client
}
