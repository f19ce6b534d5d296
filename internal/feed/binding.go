package feed

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/alfredjeanlab/storescan/internal/events"
)

// Binding keeps exactly one subscription of one category alive for the
// currently bound scope.
type Binding struct {
	feed     Feed
	category events.Category
	onChange func()
	logger   *slog.Logger

	// mu is held across Subscribe and Unsubscribe, so onChange must not
	// call Bind, Unbind or Close synchronously.
	mu     sync.Mutex
	scope  string
	sub    Subscription
	closed bool
}

// NewBinding returns an unbound binding.
func NewBinding(f Feed, category events.Category, onChange func(), logger *slog.Logger) *Binding {
	if logger == nil {
		logger = slog.Default()
	}
	return &Binding{feed: f, category: category, onChange: onChange, logger: logger}
}

// Bind subscribes to scope, tearing down the previous subscription first.
// Binding the current scope again is a no-op.
func (b *Binding) Bind(scope string) error {
	if scope == "" {
		return errors.New("feed: store scope is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("feed: binding closed")
	}
	if b.sub != nil && b.scope == scope {
		return nil
	}
	b.unbindLocked()

	sub, err := b.feed.Subscribe(scope, b.category, b.onChange)
	if err != nil {
		return err
	}
	b.scope, b.sub = scope, sub
	b.logger.Info("feed bound", "scope", scope, "category", b.category)
	return nil
}

// Scope returns the bound scope, or "".
func (b *Binding) Scope() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scope
}

// Unbind drops the current subscription.
func (b *Binding) Unbind() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unbindLocked()
}

func (b *Binding) unbindLocked() {
	if b.sub == nil {
		return
	}
	b.sub.Unsubscribe()
	b.logger.Debug("feed unbound", "scope", b.scope, "category", b.category)
	b.sub, b.scope = nil, ""
}

// Close unbinds and refuses later binds.
func (b *Binding) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unbindLocked()
	b.closed = true
}
