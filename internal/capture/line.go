package capture

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/alfredjeanlab/storescan/internal/model"
)

// LineCameraID is the only camera a LineDevice reports.
const LineCameraID = "line"

// LineDevice is a Device backed by text lines, one decode result per line:
// "payload" or "payload<TAB>symbology". It serves keyboard-wedge and serial
// scanners, stdin and replay files. Only one track may be open at a time.
type LineDevice struct {
	name string
	r    io.Reader

	start sync.Once
	lines chan frame
	done  chan struct{} // closed when the reader is exhausted
	err   error

	mu   sync.Mutex
	open bool
}

type frame struct {
	payload   string
	symbology string
}

// NewLineDevice returns a device reading decode results from r.
func NewLineDevice(name string, r io.Reader) *LineDevice {
	return &LineDevice{
		name:  name,
		r:     r,
		lines: make(chan frame),
		done:  make(chan struct{}),
	}
}

// Done is closed once the underlying reader is exhausted.
func (d *LineDevice) Done() <-chan struct{} { return d.done }

// Err returns the read error that ended the reader, if any. It is only
// meaningful after Done is closed.
func (d *LineDevice) Err() error {
	select {
	case <-d.done:
		return d.err
	default:
		return nil
	}
}

func (d *LineDevice) Cameras(context.Context) ([]Camera, error) {
	return []Camera{{ID: LineCameraID, Label: d.name, Facing: FacingBack}}, nil
}

func (d *LineDevice) Open(_ context.Context, cameraID string, onFrame FrameHandler) (Track, error) {
	if cameraID != LineCameraID {
		return nil, model.NewError(model.KindNoDevice, "open", errors.New("unknown camera "+cameraID))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return nil, model.NewError(model.KindDeviceBusy, "open", errors.New(d.name+" is already open"))
	}
	d.open = true
	d.start.Do(func() { go d.pump() })

	t := &lineTrack{dev: d, stop: make(chan struct{})}
	t.wg.Add(1)
	go t.forward(onFrame)
	return t, nil
}

// pump reads lines until EOF. Lines are handed to whichever track is open;
// while none is, the pump blocks.
func (d *LineDevice) pump() {
	defer close(d.done)
	sc := bufio.NewScanner(d.r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		payload, sym, _ := strings.Cut(line, "\t")
		d.lines <- frame{payload: payload, symbology: strings.TrimSpace(sym)}
	}
	d.err = sc.Err()
}

type lineTrack struct {
	dev  *LineDevice
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (t *lineTrack) forward(onFrame FrameHandler) {
	defer t.wg.Done()
	for {
		select {
		case <-t.stop:
			return
		case <-t.dev.done:
			return
		case f := <-t.dev.lines:
			onFrame(f.payload, f.symbology)
		}
	}
}

func (t *lineTrack) Capabilities() Capabilities { return Capabilities{} }

func (t *lineTrack) SetTorch(context.Context, bool) error {
	return errors.New("line device has no torch")
}

// Close stops forwarding and waits for an in-flight frame to finish.
func (t *lineTrack) Close(context.Context) error {
	t.once.Do(func() {
		close(t.stop)
		t.wg.Wait()
		t.dev.mu.Lock()
		t.dev.open = false
		t.dev.mu.Unlock()
	})
	return nil
}
