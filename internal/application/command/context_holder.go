package command

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hselingforschool/olymp-queue-bot/internal/application/port"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/olymp"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
)

// ContextHolder keeps the context of the current olymp. It is loaded from the
// store at startup and replaced by the engine after phase-changing commands.
type ContextHolder struct {
	mu      sync.RWMutex
	current olymp.Context
}

// NewContextHolder creates an empty holder.
func NewContextHolder() *ContextHolder {
	return &ContextHolder{}
}

// Load reads the latest olymp from the store. An empty store leaves the
// holder empty.
func (h *ContextHolder) Load(ctx context.Context, store port.Store) error {
	var loaded olymp.Context
	err := store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		o, err := tx.Olymps().GetCurrent(ctx)
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		loaded = olymp.ContextOf(o)
		return nil
	})
	if err != nil {
		return fmt.Errorf("load olymp context: %w", err)
	}
	h.Set(loaded)
	return nil
}

// Get returns the current context. The zero value means there is no olymp.
func (h *ContextHolder) Get() olymp.Context {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Set replaces the current context.
func (h *ContextHolder) Set(c olymp.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = c
}
