package capture

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredjeanlab/storescan/internal/model"
)

// fakeDevice records every device call in order.
type fakeDevice struct {
	mu      sync.Mutex
	calls   []string
	cams    []Camera
	camsErr error
	openErr error
	torch   bool

	torchErr error
	closeErr error

	open    int // tracks currently open
	maxOpen int
	frames  []FrameHandler
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		cams:  []Camera{{ID: "front", Facing: FacingFront}, {ID: "back", Facing: FacingBack}},
		torch: true,
	}
}

func (d *fakeDevice) log(call string) {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()
}

func (d *fakeDevice) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *fakeDevice) Cameras(context.Context) ([]Camera, error) {
	d.log("cameras")
	return d.cams, d.camsErr
}

func (d *fakeDevice) Open(_ context.Context, id string, onFrame FrameHandler) (Track, error) {
	d.log("open:" + id)
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.mu.Lock()
	d.open++
	if d.open > d.maxOpen {
		d.maxOpen = d.open
	}
	d.frames = append(d.frames, onFrame)
	d.mu.Unlock()
	return &fakeTrack{dev: d}, nil
}

// emit delivers a decode result through the handler of the i-th opened track.
func (d *fakeDevice) emit(i int, payload string) {
	d.mu.Lock()
	h := d.frames[i]
	d.mu.Unlock()
	h(payload, "ean_13")
}

type fakeTrack struct {
	dev *fakeDevice
}

func (t *fakeTrack) Capabilities() Capabilities { return Capabilities{Torch: t.dev.torch} }

func (t *fakeTrack) SetTorch(_ context.Context, on bool) error {
	if on {
		t.dev.log("torch:on")
	} else {
		t.dev.log("torch:off")
	}
	return t.dev.torchErr
}

func (t *fakeTrack) Close(context.Context) error {
	t.dev.log("close")
	t.dev.mu.Lock()
	t.dev.open--
	t.dev.mu.Unlock()
	return t.dev.closeErr
}

type sinkRecorder struct {
	mu       sync.Mutex
	payloads []string
}

func (r *sinkRecorder) handle(payload, _ string) {
	r.mu.Lock()
	r.payloads = append(r.payloads, payload)
	r.mu.Unlock()
}

func (r *sinkRecorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.payloads...)
}

func TestSession_StartPrefersBackCamera(t *testing.T) {
	dev := newFakeDevice()
	s := NewSession(dev, nil, Options{})

	require.NoError(t, s.Start(context.Background()))
	st := s.State()
	assert.Equal(t, Active, st.Status)
	assert.Equal(t, "back", st.CameraID)
	assert.True(t, st.LightAvailable)
	assert.False(t, st.LightOn)
	assert.Equal(t, []string{"cameras", "open:back"}, dev.Calls())
}

func TestSession_StartPreferredCamera(t *testing.T) {
	dev := newFakeDevice()
	s := NewSession(dev, nil, Options{CameraID: "front"})
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, "front", s.State().CameraID)
}

func TestSession_StartErrors(t *testing.T) {
	for _, tc := range []struct {
		name  string
		setup func(*fakeDevice)
		want  error
	}{
		{"NoDevice", func(d *fakeDevice) { d.cams = nil }, model.ErrNoDevice},
		{"PermissionDenied", func(d *fakeDevice) {
			d.openErr = model.NewError(model.KindPermissionDenied, "open", errors.New("NotAllowedError"))
		}, model.ErrPermissionDenied},
		{"PermissionDeniedListing", func(d *fakeDevice) { d.camsErr = model.ErrPermissionDenied }, model.ErrPermissionDenied},
		{"UnclassifiedIsBusy", func(d *fakeDevice) { d.openErr = errors.New("NotReadableError") }, model.ErrDeviceBusy},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dev := newFakeDevice()
			tc.setup(dev)
			var states []Status
			s := NewSession(dev, nil, Options{OnChange: func(st State) { states = append(states, st.Status) }})

			err := s.Start(context.Background())
			require.ErrorIs(t, err, tc.want)
			st := s.State()
			assert.Equal(t, Error, st.Status)
			assert.ErrorIs(t, st.LastError, tc.want)
			assert.True(t, model.KindOf(st.LastError).SessionFatal())
			assert.Equal(t, []Status{Initializing, Error}, states)
		})
	}
}

func TestSession_StartWhileActiveStopsFirst(t *testing.T) {
	dev := newFakeDevice()
	s := NewSession(dev, nil, Options{})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Start(ctx))

	assert.Equal(t, Active, s.State().Status)
	assert.Equal(t, 1, dev.maxOpen, "device must never be held twice")
	assert.Equal(t, []string{"cameras", "open:back", "close", "cameras", "open:back"}, dev.Calls())
}

func TestSession_StopTorchOffBeforeRelease(t *testing.T) {
	dev := newFakeDevice()
	s := NewSession(dev, nil, Options{})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.ToggleLight(ctx))
	assert.True(t, s.State().LightOn)

	s.Stop(ctx)
	calls := dev.Calls()
	assert.Equal(t, []string{"torch:off", "close"}, calls[len(calls)-2:])
	st := s.State()
	assert.Equal(t, Idle, st.Status)
	assert.False(t, st.LightOn)
	assert.False(t, st.LightAvailable)
}

func TestSession_StopIdempotent(t *testing.T) {
	dev := newFakeDevice()
	s := NewSession(dev, nil, Options{})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	s.Stop(ctx)
	after := dev.Calls()
	s.Stop(ctx)

	assert.Equal(t, after, dev.Calls())
	assert.Equal(t, Idle, s.State().Status)

	// Stop on a fresh session is a no-op too.
	fresh := NewSession(newFakeDevice(), nil, Options{})
	fresh.Stop(ctx)
	assert.Equal(t, Idle, fresh.State().Status)
}

func TestSession_StopSwallowsReleaseErrors(t *testing.T) {
	dev := newFakeDevice()
	s := NewSession(dev, nil, Options{})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.ToggleLight(ctx))
	dev.torchErr = errors.New("torch stuck")
	dev.closeErr = errors.New("track gone")

	s.Stop(ctx)
	assert.Equal(t, Idle, s.State().Status)
	calls := dev.Calls()
	assert.Equal(t, "close", calls[len(calls)-1], "release is attempted even when torch-off fails")
}

func TestSession_StopFromError(t *testing.T) {
	dev := newFakeDevice()
	dev.cams = nil
	s := NewSession(dev, nil, Options{})

	require.Error(t, s.Start(context.Background()))
	s.Stop(context.Background())
	st := s.State()
	assert.Equal(t, Idle, st.Status)
	assert.NoError(t, st.LastError)
}

func TestSession_StopWithCancelledContextStillReleases(t *testing.T) {
	dev := newFakeDevice()
	s := NewSession(dev, nil, Options{})
	require.NoError(t, s.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Stop(ctx)
	assert.Equal(t, 0, dev.open)
}

func TestSession_ToggleLight(t *testing.T) {
	ctx := context.Background()

	t.Run("NotActive", func(t *testing.T) {
		dev := newFakeDevice()
		s := NewSession(dev, nil, Options{})
		require.NoError(t, s.ToggleLight(ctx))
		assert.Empty(t, dev.Calls())
	})

	t.Run("NoTorch", func(t *testing.T) {
		dev := newFakeDevice()
		dev.torch = false
		s := NewSession(dev, nil, Options{})
		require.NoError(t, s.Start(ctx))
		require.NoError(t, s.ToggleLight(ctx))
		assert.NotContains(t, dev.Calls(), "torch:on")
	})

	t.Run("OnOff", func(t *testing.T) {
		dev := newFakeDevice()
		s := NewSession(dev, nil, Options{})
		require.NoError(t, s.Start(ctx))
		require.NoError(t, s.ToggleLight(ctx))
		assert.True(t, s.State().LightOn)
		require.NoError(t, s.ToggleLight(ctx))
		assert.False(t, s.State().LightOn)
	})

	t.Run("FailureKeepsState", func(t *testing.T) {
		dev := newFakeDevice()
		s := NewSession(dev, nil, Options{})
		require.NoError(t, s.Start(ctx))
		dev.torchErr = errors.New("constraint rejected")
		err := s.ToggleLight(ctx)
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "constraint rejected"))
		st := s.State()
		assert.Equal(t, Active, st.Status)
		assert.False(t, st.LightOn)
	})
}

func TestSession_LateFramesDropped(t *testing.T) {
	dev := newFakeDevice()
	rec := &sinkRecorder{}
	s := NewSession(dev, rec.handle, Options{})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	dev.emit(0, "first")
	s.Stop(ctx)
	dev.emit(0, "after-stop")

	require.NoError(t, s.Start(ctx))
	dev.emit(0, "old-track")
	dev.emit(1, "second")

	assert.Equal(t, []string{"first", "second"}, rec.got())
}
