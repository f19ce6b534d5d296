// Package gate turns the raw, unthrottled stream of decode results into a
// bounded stream of accepted scan events.
//
// Two policies are supported. Throttle accepts a payload unless the same
// payload was accepted less than Window ago; a private timer forgets the
// last payload after Window so a stalled consumer can never wedge the gate.
// Trigger ignores everything until Arm is called, accepts the first
// plausible decode and disarms; a safety timer disarms it when nothing is
// decoded in time.
//
// A throttle gate may also carry a token bucket over accepted payloads.
// It is off by default; when a rate is configured it narrows the rule
// above, and a distinct payload arriving with the bucket empty is dropped.
package gate

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/alfredjeanlab/storescan/internal/config"
	"github.com/alfredjeanlab/storescan/internal/model"
)

// Policy selects how duplicate decodes are suppressed.
type Policy string

const (
	Throttle Policy = config.GatePolicyThrottle
	Trigger  Policy = config.GatePolicyTrigger
)

// Config tunes a Gate.
type Config struct {
	Policy Policy
	// Window is the suppression window for repeated payloads.
	Window time.Duration
	// MinLength drops shorter payloads unless the symbology is a 2-D
	// matrix code.
	MinLength int
	// TriggerTimeout disarms an armed trigger gate.
	TriggerTimeout time.Duration
	// RatePerSecond and Burst cap accepted distinct payloads in throttle
	// mode. A zero rate, the default, disables the limiter.
	RatePerSecond float64
	Burst         int
	Logger        *slog.Logger
}

// DefaultConfig returns the settings of config.DefaultGateSettings.
func DefaultConfig() Config {
	return FromSettings(config.DefaultGateSettings())
}

// FromSettings converts profile settings, filling zero values with defaults.
func FromSettings(s config.GateSettings) Config {
	s = s.WithDefaults()
	return Config{
		Policy:         Policy(s.Policy),
		Window:         s.Window,
		MinLength:      s.MinLength,
		TriggerTimeout: s.TriggerTimeout,
		RatePerSecond:  s.RatePerSecond,
		Burst:          s.Burst,
	}
}

// Event is an accepted scan.
type Event struct {
	Payload   string
	Symbology model.Symbology
	At        time.Time
}

// State is a snapshot of the gate.
type State struct {
	Policy      Policy
	LastPayload string
	AcceptedAt  time.Time
	Locked      bool
}

// Gate filters decode results. All methods are safe for concurrent use;
// callbacks run on the caller's goroutine (or the timer's) with no lock held.
type Gate struct {
	cfg       Config
	onAccept  func(Event)
	onTimeout func(error)
	limiter   *rate.Limiter
	logger    *slog.Logger

	mu          sync.Mutex
	lastPayload string
	acceptedAt  time.Time
	locked      bool
	seq         uint64 // invalidates timers armed before the latest change
	timer       *time.Timer
	closed      bool
}

// New returns a gate delivering accepted events to onAccept. onTimeout,
// which may be nil, receives a DecodeTimeout error when an armed trigger
// gate expires. Zero durations and length take their defaults; a zero
// rate disables the limiter.
func New(cfg Config, onAccept func(Event), onTimeout func(error)) *Gate {
	d := DefaultConfig()
	if cfg.Policy == "" {
		cfg.Policy = d.Policy
	}
	if cfg.Window <= 0 {
		cfg.Window = d.Window
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = d.MinLength
	}
	if cfg.TriggerTimeout <= 0 {
		cfg.TriggerTimeout = d.TriggerTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{cfg: cfg, onAccept: onAccept, onTimeout: onTimeout, logger: logger}
	if cfg.Policy == Throttle && cfg.RatePerSecond > 0 {
		burst := max(cfg.Burst, 1)
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return g
}

// Policy returns the gate's policy.
func (g *Gate) Policy() Policy { return g.cfg.Policy }

// Offer submits one decode result and reports whether it was accepted.
func (g *Gate) Offer(payload, symbology string) bool {
	if strings.TrimSpace(payload) == "" {
		return false
	}
	sym := model.NormalizeSymbology(symbology)
	if !sym.IsMatrix() && utf8.RuneCountInString(payload) < g.cfg.MinLength {
		g.logger.Debug("decode below length floor", "payload", payload, "symbology", sym)
		return false
	}

	now := time.Now()
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return false
	}
	switch g.cfg.Policy {
	case Trigger:
		if !g.locked {
			g.mu.Unlock()
			return false
		}
		g.locked = false
		g.seq++
		g.stopTimerLocked()
	default:
		if payload == g.lastPayload && now.Sub(g.acceptedAt) < g.cfg.Window {
			g.mu.Unlock()
			return false
		}
		if g.limiter != nil && !g.limiter.AllowN(now, 1) {
			g.mu.Unlock()
			g.logger.Debug("decode rate limited", "payload", payload)
			return false
		}
		g.seq++
		seq := g.seq
		g.stopTimerLocked()
		g.timer = time.AfterFunc(g.cfg.Window, func() { g.release(seq) })
	}
	g.lastPayload = payload
	g.acceptedAt = now
	g.mu.Unlock()

	if g.onAccept != nil {
		g.onAccept(Event{Payload: payload, Symbology: sym, At: now})
	}
	return true
}

// release forgets the last accepted payload unless something newer was
// accepted since the timer was armed.
func (g *Gate) release(seq uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seq != seq || g.closed {
		return
	}
	g.lastPayload = ""
	g.acceptedAt = time.Time{}
	g.timer = nil
}

// Arm opens a trigger gate for one decode. It reports false for throttle
// gates and closed gates. Arming an armed gate restarts its safety timer.
func (g *Gate) Arm() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || g.cfg.Policy != Trigger {
		return false
	}
	g.locked = true
	g.seq++
	seq := g.seq
	g.stopTimerLocked()
	g.timer = time.AfterFunc(g.cfg.TriggerTimeout, func() { g.expire(seq) })
	return true
}

func (g *Gate) expire(seq uint64) {
	g.mu.Lock()
	if g.seq != seq || g.closed || !g.locked {
		g.mu.Unlock()
		return
	}
	g.locked = false
	g.timer = nil
	g.mu.Unlock()

	g.logger.Info("trigger expired without a decode", "timeout", g.cfg.TriggerTimeout)
	if g.onTimeout != nil {
		g.onTimeout(model.NewError(model.KindDecodeTimeout, "arm", errors.New("no code decoded")))
	}
}

// State returns a snapshot of the gate.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State{
		Policy:      g.cfg.Policy,
		LastPayload: g.lastPayload,
		AcceptedAt:  g.acceptedAt,
		Locked:      g.locked,
	}
}

// Close stops the gate's timer. Later offers are dropped.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.locked = false
	g.stopTimerLocked()
}

func (g *Gate) stopTimerLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}
