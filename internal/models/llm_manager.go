package models

import (
	"context"
	"fmt"
	"slices"

	"github.com/varsilias/chatbot/internal/llm"
)

// LLMManager asks the endpoint for its model list on every call.
type LLMManager struct{ h *llm.Handle }

func NewLLMManager(h *llm.Handle) *LLMManager { return &LLMManager{h: h} }

func (m *LLMManager) List(ctx context.Context) ([]string, error) {
	return m.h.Get().Models(ctx)
}

// Healthy succeeds when the endpoint answers and lists model.
func (m *LLMManager) Healthy(ctx context.Context, model string) error {
	items, err := m.List(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(items, model) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownModel, model)
}
