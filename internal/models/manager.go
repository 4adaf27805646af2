package models

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

var ErrUnknownModel = errors.New("unknown model")

// Manager reports which models the completion endpoint can serve.
type Manager interface {
	List(ctx context.Context) ([]string, error)
	Healthy(ctx context.Context, model string) error
}

// StaticManager serves a fixed list. The echo engine uses it.
type StaticManager struct{ items []string }

func NewStaticManager(items ...string) *StaticManager { return &StaticManager{items: items} }

func (m *StaticManager) List(ctx context.Context) ([]string, error) {
	return slices.Clone(m.items), nil
}

func (m *StaticManager) Healthy(ctx context.Context, model string) error {
	if slices.Contains(m.items, model) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownModel, model)
}
