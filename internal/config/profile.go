package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Gate policies.
const (
	GatePolicyThrottle = "throttle"
	GatePolicyTrigger  = "trigger"
)

// Profiles holds all named remotes and tracks which one is active.
type Profiles struct {
	Active  string             `toml:"active"`
	Remotes map[string]Profile `toml:"remotes"`
	Gate    GateSettings       `toml:"gate"`
}

// Profile is a named server profile together with the store scope the
// client operates in.
type Profile struct {
	URL         string `toml:"url"`
	GRPCAddr    string `toml:"grpc_addr,omitempty"`
	Token       string `toml:"token,omitempty"`
	NATSURL     string `toml:"nats_url,omitempty"`
	StoreScope  string `toml:"store_scope,omitempty"`
	Description string `toml:"description,omitempty"`
}

// GateSettings tunes the scan event gate. Zero values fall back to
// DefaultGateSettings.
type GateSettings struct {
	Policy         string        `toml:"policy,omitempty"`
	Window         time.Duration `toml:"window,omitempty"`
	MinLength      int           `toml:"min_length,omitempty"`
	TriggerTimeout time.Duration `toml:"trigger_timeout,omitempty"`
	RatePerSecond  float64       `toml:"rate_per_second,omitempty"`
	Burst          int           `toml:"burst,omitempty"`
}

// DefaultGateSettings returns the free-running policy with the window and
// length floor used on the shop floor. The burst limiter is off unless a
// rate is configured.
func DefaultGateSettings() GateSettings {
	return GateSettings{
		Policy:         GatePolicyThrottle,
		Window:         2500 * time.Millisecond,
		MinLength:      8,
		TriggerTimeout: 3 * time.Second,
		Burst:          4,
	}
}

// WithDefaults fills zero fields from DefaultGateSettings.
func (g GateSettings) WithDefaults() GateSettings {
	d := DefaultGateSettings()
	if g.Policy == "" {
		g.Policy = d.Policy
	}
	if g.Window <= 0 {
		g.Window = d.Window
	}
	if g.MinLength <= 0 {
		g.MinLength = d.MinLength
	}
	if g.TriggerTimeout <= 0 {
		g.TriggerTimeout = d.TriggerTimeout
	}
	if g.Burst <= 0 {
		g.Burst = d.Burst
	}
	return g
}

// Validate rejects unknown gate policies.
func (g GateSettings) Validate() error {
	switch g.Policy {
	case "", GatePolicyThrottle, GatePolicyTrigger:
		return nil
	}
	return fmt.Errorf("unknown gate policy %q (must be %s or %s)", g.Policy, GatePolicyThrottle, GatePolicyTrigger)
}

// ProfilesPath returns the location of the profiles file, creating its
// directory if needed. STORESCAN_PROFILES overrides the default.
func ProfilesPath() (string, error) {
	if p := os.Getenv("STORESCAN_PROFILES"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".local", "state", "storescan")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "remotes.toml"), nil
}

// LoadProfiles reads the profiles file at path. A missing file yields an
// empty configuration.
func LoadProfiles(path string) (Profiles, error) {
	var p Profiles
	if _, err := toml.DecodeFile(path, &p); err != nil {
		if os.IsNotExist(err) {
			return Profiles{Remotes: map[string]Profile{}}, nil
		}
		return Profiles{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if p.Remotes == nil {
		p.Remotes = map[string]Profile{}
	}
	if err := p.Gate.Validate(); err != nil {
		return Profiles{}, err
	}
	return p, nil
}

// SaveProfiles writes p to path with owner-only permissions.
func SaveProfiles(path string, p Profiles) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(p)
}

// ActiveProfile returns the active remote, if any.
func (p Profiles) ActiveProfile() (Profile, bool) {
	if p.Active == "" {
		return Profile{}, false
	}
	r, ok := p.Remotes[p.Active]
	return r, ok
}
