// Package presence tracks which capture clients are live in each store
// scope.
//
// The server records an Activity whenever a client touches a scope (a
// write, a list, an open event stream). Clients are keyed by their origin
// instance ID within a scope. A background reaper marks idle clients as
// gone and later evicts them so the map stays bounded.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Entry represents a single client's live presence in a scope.
type Entry struct {
	Scope      string    `json:"store_scope"`
	Origin     string    `json:"origin"`
	Actor      string    `json:"actor,omitempty"`
	LastSeen   time.Time `json:"last_seen"`
	FirstSeen  time.Time `json:"first_seen"`
	LastAction string    `json:"last_action"` // e.g. "insert", "delete", "list", "watch"
	IdleSecs   float64   `json:"idle_secs"`
	Scans      int64     `json:"scans"`              // accepted codes written by this client
	Watching   bool      `json:"watching,omitempty"` // an event stream is open
	Reaped     bool      `json:"reaped,omitempty"`   // true if reaper marked gone
	ReapedAt   time.Time `json:"reaped_at,omitempty"`
}

// Activity is what the server knows about a request that touched a scope.
type Activity struct {
	Scope  string
	Origin string // client instance ID; falls back to Actor when empty
	Actor  string
	Action string
}

// Actions recorded by the server.
const (
	ActionInsert = "insert"
	ActionDelete = "delete"
	ActionClear  = "clear"
	ActionList   = "list"
	ActionWatch  = "watch"
	ActionLeave  = "leave"
)

// ReaperConfig configures the background idle-client reaper.
type ReaperConfig struct {
	// IdleThreshold is how long a client must be idle before it is marked gone.
	// Clients with an open event stream are never reaped.
	// Default: 10 minutes.
	IdleThreshold time.Duration

	// EvictAfter is how long after being reaped before a client is removed.
	// Default: 30 minutes.
	EvictAfter time.Duration

	// SweepInterval is how often the reaper scans.
	// Default: 60 seconds.
	SweepInterval time.Duration

	// OnGone is called for each client newly marked as gone, outside the lock.
	OnGone func(scope, origin string)
}

type key struct {
	scope  string
	origin string
}

// Tracker maintains an in-memory roster of clients per scope.
type Tracker struct {
	mu      sync.RWMutex
	clients map[key]*clientState

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type clientState struct {
	actor      string
	firstSeen  time.Time
	lastSeen   time.Time
	lastAction string
	scans      int64
	watchers   int
	reaped     bool
	reapedAt   time.Time
}

// New creates a new presence tracker.
func New() *Tracker {
	return &Tracker{clients: make(map[key]*clientState)}
}

// Record updates presence state for a client from one request.
func (t *Tracker) Record(a Activity) {
	origin := a.Origin
	if origin == "" {
		origin = a.Actor
	}
	if a.Scope == "" || origin == "" {
		return
	}

	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{scope: a.Scope, origin: origin}
	state, ok := t.clients[k]
	if !ok {
		state = &clientState{firstSeen: now}
		t.clients[k] = state
	}

	if state.reaped {
		slog.Info("presence: client returned", "scope", a.Scope, "origin", origin)
		state.reaped = false
		state.reapedAt = time.Time{}
	}

	state.lastSeen = now
	state.lastAction = a.Action
	if a.Actor != "" {
		state.actor = a.Actor
	}
	switch a.Action {
	case ActionInsert:
		state.scans++
	case ActionWatch:
		state.watchers++
	case ActionLeave:
		if state.watchers > 0 {
			state.watchers--
		}
	}
}

// Roster returns the clients of scope, most recently active first.
// staleThreshold excludes clients idle for longer; pass 0 to include all.
func (t *Tracker) Roster(scope string, staleThreshold time.Duration) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := time.Now()
	var entries []Entry
	for k, state := range t.clients {
		if k.scope != scope {
			continue
		}
		idle := now.Sub(state.lastSeen)
		if staleThreshold > 0 && idle > staleThreshold && state.watchers == 0 {
			continue
		}
		entries = append(entries, Entry{
			Scope:      k.scope,
			Origin:     k.origin,
			Actor:      state.actor,
			LastSeen:   state.lastSeen,
			FirstSeen:  state.firstSeen,
			LastAction: state.lastAction,
			IdleSecs:   idle.Seconds(),
			Scans:      state.scans,
			Watching:   state.watchers > 0,
			Reaped:     state.reaped,
			ReapedAt:   state.reapedAt,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastSeen.After(entries[j].LastSeen)
	})
	return entries
}

// StartReaper launches a background goroutine that periodically marks idle
// clients as gone. Call Stop() to shut it down.
func (t *Tracker) StartReaper(cfg *ReaperConfig) {
	if cfg == nil {
		cfg = &ReaperConfig{}
	}
	if cfg.IdleThreshold == 0 {
		cfg.IdleThreshold = 10 * time.Minute
	}
	if cfg.EvictAfter == 0 {
		cfg.EvictAfter = 30 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 60 * time.Second
	}

	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})

	go t.reapLoop(cfg)
	slog.Info("presence: reaper started",
		"idle_threshold", cfg.IdleThreshold,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (t *Tracker) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}
}

func (t *Tracker) reapLoop(cfg *ReaperConfig) {
	defer close(t.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.reaperStop:
			return
		case <-ticker.C:
			t.sweep(cfg, time.Now())
		}
	}
}

func (t *Tracker) sweep(cfg *ReaperConfig, now time.Time) {
	var gone []key

	t.mu.Lock()
	for k, state := range t.clients {
		if state.reaped {
			if now.Sub(state.reapedAt) > cfg.EvictAfter {
				delete(t.clients, k)
			}
			continue
		}
		if state.watchers > 0 {
			continue
		}
		if now.Sub(state.lastSeen) > cfg.IdleThreshold {
			state.reaped = true
			state.reapedAt = now
			gone = append(gone, k)
		}
	}
	t.mu.Unlock()

	for _, k := range gone {
		slog.Info("presence: client gone", "scope", k.scope, "origin", k.origin,
			"threshold", cfg.IdleThreshold)
		if cfg.OnGone != nil {
			cfg.OnGone(k.scope, k.origin)
		}
	}
}
