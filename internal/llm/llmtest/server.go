// Package llmtest runs a fake OpenAI-compatible endpoint for tests.
package llmtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/varsilias/chatbot/internal/config"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one chat completion request the server received.
type Request struct {
	Model         string    `json:"model"`
	Messages      []Message `json:"messages"`
	Stream        bool      `json:"stream"`
	Authorization string    `json:"-"`
}

type Server struct {
	srv *httptest.Server

	mu sync.Mutex
	// Fragments are streamed as content deltas, in order.
	Fragments []string
	// FailAfter, when >= 0, sends a malformed event after that many fragments.
	FailAfter int
	// Status, when non-zero, rejects chat requests with this HTTP status.
	Status   int
	Models   []string
	requests []Request
}

// NewServer starts a server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{FailAfter: -1, Models: []string{"test-model"}}

	r := chi.NewRouter()
	r.Get("/v1/models", s.models)
	r.Post("/v1/chat/completions", s.chat)
	s.srv = httptest.NewServer(r)
	t.Cleanup(s.srv.Close)
	return s
}

// BaseURL is the endpoint value a client should be configured with.
func (s *Server) BaseURL() string { return s.srv.URL + "/v1" }

func (s *Server) Settings(model string) config.Settings {
	return config.Settings{Endpoint: s.BaseURL(), Model: model, Credential: config.Secret("sk-test")}
}

func (s *Server) Script(fragments ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fragments = fragments
	s.FailAfter = -1
	s.Status = 0
}

func (s *Server) FailMidStream(after int, fragments ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fragments = fragments
	s.FailAfter = after
	s.Status = 0
}

func (s *Server) Reject(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) models(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ids := append([]string(nil), s.Models...)
	s.mu.Unlock()

	data := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		data = append(data, map[string]any{"id": id, "object": "model", "created": 1, "owned_by": "llmtest"})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Authorization = r.Header.Get("Authorization")

	s.mu.Lock()
	s.requests = append(s.requests, req)
	frags := append([]string(nil), s.Fragments...)
	failAfter, status := s.FailAfter, s.Status
	s.mu.Unlock()

	if status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "rejected by llmtest", "type": "server_error"},
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	// role-only chunk first: carries no content
	writeEvent(w, chunk(req.Model, map[string]any{"role": "assistant"}))
	_ = rc.Flush()

	for i, f := range frags {
		if i == failAfter {
			fmt.Fprint(w, "data: {\"id\":\n\n")
			_ = rc.Flush()
			return
		}
		writeEvent(w, chunk(req.Model, map[string]any{"content": f}))
		_ = rc.Flush()
	}
	if failAfter >= 0 && failAfter >= len(frags) {
		fmt.Fprint(w, "data: {\"id\":\n\n")
		_ = rc.Flush()
		return
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	_ = rc.Flush()
}

func chunk(model string, delta map[string]any) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-llmtest",
		"object":  "chat.completion.chunk",
		"created": 1,
		"model":   model,
		"choices": []any{
			map[string]any{"index": 0, "delta": delta, "finish_reason": nil},
		},
	}
}

func writeEvent(w http.ResponseWriter, v any) {
	b, _ := json.Marshal(v)
	fmt.Fprintf(w, "data: %s\n\n", b)
}
