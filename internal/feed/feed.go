// Package feed delivers change notifications for one store scope. A
// subscriber is told that something changed, not what; it is expected to
// resync.
package feed

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/alfredjeanlab/storescan/internal/events"
)

// DefaultDebounce coalesces bursts of notifications into one call.
const DefaultDebounce = 200 * time.Millisecond

// Feed subscribes to changes of a category within a store scope.
type Feed interface {
	// Subscribe calls onChange after changes of category in scope. An
	// empty scope is refused. onChange must not call Unsubscribe on its
	// own subscription synchronously.
	Subscribe(scope string, category events.Category, onChange func()) (Subscription, error)
}

// Subscription is a live subscription.
type Subscription interface {
	// Unsubscribe stops delivery. No onChange call starts after it
	// returns. It is idempotent.
	Unsubscribe()
}

// payloadScope extracts the store scope an event payload is about, or ""
// when the payload does not say.
func payloadScope(data []byte) string {
	var p struct {
		Scope string `json:"store_scope"`
		Code  *struct {
			Scope string `json:"store_scope"`
		} `json:"code"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return ""
	}
	if p.Scope != "" {
		return p.Scope
	}
	if p.Code != nil {
		return p.Code.Scope
	}
	return ""
}

// debouncer runs fn at most once per delay. The first trigger of a quiet
// period arms the timer; triggers while it is armed are absorbed.
type debouncer struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex // held while fn runs
	timer   *time.Timer
	stopped bool
}

func newDebouncer(delay time.Duration, fn func()) *debouncer {
	return &debouncer{delay: delay, fn: fn}
}

func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || d.timer != nil {
		return
	}
	if d.delay <= 0 {
		d.fn()
		return
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

// flush runs fn now, dropping any armed timer.
func (d *debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.fn()
}

func (d *debouncer) fire() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.timer = nil
	d.fn()
}

// stop waits for a running fn and disables the debouncer.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
