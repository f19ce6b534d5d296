package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alfredjeanlab/storescan/internal/model"
)

// Status is the lifecycle state of a capture session.
type Status int

const (
	Idle Status = iota
	Initializing
	Active
	Stopping
	Error
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initializing:
		return "initializing"
	case Active:
		return "active"
	case Stopping:
		return "stopping"
	case Error:
		return "error"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// State is a snapshot of a session.
type State struct {
	Status         Status
	LightAvailable bool
	LightOn        bool
	Generation     uint64
	CameraID       string
	LastError      error
}

// Options configure a Session.
type Options struct {
	// CameraID selects a camera; empty picks the back camera.
	CameraID string
	// OnChange is called after every state transition, outside the lock.
	OnChange func(State)
	Logger   *slog.Logger
}

// Session owns at most one running Track of a Device. Decode results of
// the running track are forwarded to the sink while the session that
// opened it is still Active.
type Session struct {
	device Device
	sink   FrameHandler
	opts   Options
	logger *slog.Logger

	// op serialises Start, Stop and ToggleLight. It is held across device
	// calls; mu never is.
	op sync.Mutex

	mu             sync.Mutex
	status         Status
	gen            uint64
	track          Track
	cameraID       string
	lightAvailable bool
	lightOn        bool
	lastErr        error
}

// NewSession returns an Idle session forwarding decode results to sink.
func NewSession(device Device, sink FrameHandler, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{device: device, sink: sink, opts: opts, logger: logger}
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	return State{
		Status:         s.status,
		LightAvailable: s.lightAvailable,
		LightOn:        s.lightOn,
		Generation:     s.gen,
		CameraID:       s.cameraID,
		LastError:      s.lastErr,
	}
}

func (s *Session) notify() {
	if s.opts.OnChange == nil {
		return
	}
	s.opts.OnChange(s.State())
}

// Start acquires a camera and begins forwarding decode results. A running
// session is stopped first, so the device is never acquired twice. On
// failure the session ends in Error and the error is returned; its kind is
// NoDevice, PermissionDenied or DeviceBusy.
func (s *Session) Start(ctx context.Context) error {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	running := s.status != Idle
	s.mu.Unlock()
	if running {
		s.stop(ctx)
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.status = Initializing
	s.lastErr = nil
	s.mu.Unlock()
	s.notify()

	cams, err := s.device.Cameras(ctx)
	if err != nil {
		return s.fail(gen, classify("start", err))
	}
	if len(cams) == 0 {
		return s.fail(gen, model.NewError(model.KindNoDevice, "start", errors.New("no camera found")))
	}
	cam := pickCamera(cams, s.opts.CameraID)

	track, err := s.device.Open(ctx, cam.ID, s.forwarder(gen))
	if err != nil {
		return s.fail(gen, classify("start", err))
	}
	caps := track.Capabilities()

	s.mu.Lock()
	s.status = Active
	s.track = track
	s.cameraID = cam.ID
	s.lightAvailable = caps.Torch
	s.lightOn = false
	s.mu.Unlock()

	s.logger.Info("capture session started", "camera", cam.ID, "label", cam.Label, "torch", caps.Torch, "generation", gen)
	s.notify()
	return nil
}

// classify gives unclassified device errors the DeviceBusy kind.
func classify(op string, err error) error {
	if model.KindOf(err) != "" {
		return err
	}
	return model.NewError(model.KindDeviceBusy, op, err)
}

func (s *Session) fail(gen uint64, err error) error {
	s.mu.Lock()
	if s.gen == gen {
		s.status = Error
		s.lastErr = err
	}
	s.mu.Unlock()
	s.logger.Warn("capture session failed to start", "kind", model.KindOf(err), "error", err)
	s.notify()
	return err
}

// forwarder returns the FrameHandler given to the track of generation gen.
func (s *Session) forwarder(gen uint64) FrameHandler {
	return func(payload, symbology string) {
		s.mu.Lock()
		live := s.gen == gen && s.status == Active
		s.mu.Unlock()
		if live && s.sink != nil {
			s.sink(payload, symbology)
		}
	}
}

// Stop releases the camera. It is safe to call in any state and always
// leaves the session Idle. The torch is switched off before the track is
// closed. Release failures are logged, not returned.
func (s *Session) Stop(ctx context.Context) {
	s.op.Lock()
	defer s.op.Unlock()
	s.stop(ctx)
}

func (s *Session) stop(ctx context.Context) {
	s.mu.Lock()
	if s.status == Idle && s.track == nil {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.status = Stopping
	track, lightOn := s.track, s.lightOn
	s.track = nil
	s.mu.Unlock()
	s.notify()

	if track != nil {
		// Release even when the caller's context is already done.
		rctx := context.WithoutCancel(ctx)
		if lightOn {
			if err := track.SetTorch(rctx, false); err != nil {
				s.logger.Warn("failed to switch torch off", "error", err)
			}
		}
		if err := track.Close(rctx); err != nil {
			s.logger.Warn("failed to release camera", "error", err)
		}
	}

	s.mu.Lock()
	s.status = Idle
	s.cameraID = ""
	s.lightAvailable = false
	s.lightOn = false
	s.lastErr = nil
	s.mu.Unlock()
	s.logger.Info("capture session stopped")
	s.notify()
}

// ToggleLight flips the torch. It does nothing unless the session is Active
// and the camera has a torch. A failure is returned and leaves the session
// as it was.
func (s *Session) ToggleLight(ctx context.Context) error {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	if s.status != Active || !s.lightAvailable || s.track == nil {
		s.mu.Unlock()
		return nil
	}
	track, want := s.track, !s.lightOn
	s.mu.Unlock()

	if err := track.SetTorch(ctx, want); err != nil {
		return fmt.Errorf("toggle light: %w", err)
	}

	s.mu.Lock()
	s.lightOn = want
	s.mu.Unlock()
	s.notify()
	return nil
}
