// Package scanner is the controller behind one scanning surface: it owns a
// capture session, a scan gate, the scanned-code pipeline of the active
// store scope and that scope's change feed, and tears all of them down
// together.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/storescan/internal/capture"
	"github.com/alfredjeanlab/storescan/internal/events"
	"github.com/alfredjeanlab/storescan/internal/feed"
	"github.com/alfredjeanlab/storescan/internal/gate"
	"github.com/alfredjeanlab/storescan/internal/model"
	"github.com/alfredjeanlab/storescan/internal/pipeline"
)

// Options configure a Controller.
type Options struct {
	Gate     gate.Config
	CameraID string

	Actor  string
	Origin string

	// Proximity is passed to the pipeline.
	Proximity time.Duration

	// Beep is called for every accepted scan.
	Beep func(gate.Event)
	// OnView receives the view after every change. Calls are serialised.
	// OnView must not call the controller's mutating methods synchronously.
	OnView func(View)

	Logger *slog.Logger
}

// View is what a scanning surface renders.
type View struct {
	Scope          string
	Status         capture.Status
	LightAvailable bool
	LightOn        bool
	Armed          bool
	LastAccepted   string
	// SessionError is set while the session is in Error. It ends the
	// session; the surface offers a retry.
	SessionError error
	// Notice is the latest mutation failure, shown transiently.
	Notice  *pipeline.Notice
	Entries []model.Entry
}

// Records returns the visible scanned codes in list order.
func (v View) Records() []model.ScannedCode {
	return model.Codes(v.Entries)
}

// Controller wires the capture pipeline together. It is safe for
// concurrent use.
type Controller struct {
	opts    Options
	logger  *slog.Logger
	session *capture.Session
	gate    *gate.Gate
	pipe    *pipeline.Pipeline
	binding *feed.Binding // nil without a feed

	ctx    context.Context // cancelled by Close
	cancel context.CancelFunc
	wg     sync.WaitGroup

	viewMu sync.Mutex

	mu           sync.Mutex
	entries      []model.Entry
	lastAccepted string
	notice       *pipeline.Notice
	closed       bool
	closeOnce    sync.Once
}

// New returns a controller with no scope bound. f may be nil, in which
// case the list is only refreshed on demand.
func New(device capture.Device, store pipeline.Store, f feed.Feed, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Gate.Logger == nil {
		opts.Gate.Logger = logger
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{opts: opts, logger: logger, ctx: ctx, cancel: cancel}

	c.pipe = pipeline.New(store, pipeline.Options{
		Actor:     opts.Actor,
		Origin:    opts.Origin,
		Proximity: opts.Proximity,
		OnChange:  c.onEntries,
		OnNotice:  c.onNotice,
		Logger:    logger,
	})
	c.gate = gate.New(opts.Gate, c.onAccept, c.onDecodeTimeout)
	c.session = capture.NewSession(device, func(payload, symbology string) {
		c.gate.Offer(payload, symbology)
	}, capture.Options{
		CameraID: opts.CameraID,
		OnChange: func(capture.State) { c.emit() },
		Logger:   logger,
	})
	if f != nil {
		c.binding = feed.NewBinding(f, events.CategoryScannedCodes, c.scheduleRefresh, logger)
	}
	return c
}

// Open makes scope the active store scope: the list is emptied, the feed
// is bound to the scope and the list is loaded. The controller stays
// usable when binding or loading fails.
func (c *Controller) Open(ctx context.Context, scope string) error {
	if err := model.ValidateScope(scope); err != nil {
		return model.NewError(model.KindInvalid, "open", fmt.Errorf("store scope %w", err))
	}
	c.pipe.SetScope(scope)

	var errs []error
	if c.binding != nil {
		// Subscribe before loading so no change falls in between.
		if err := c.binding.Bind(scope); err != nil {
			c.logger.Warn("realtime feed unavailable", "scope", scope, "error", err)
			errs = append(errs, fmt.Errorf("binding feed: %w", err))
		}
	}
	if err := c.pipe.Refresh(ctx); err != nil {
		errs = append(errs, fmt.Errorf("loading scope: %w", err))
	}
	c.emit()
	return errors.Join(errs...)
}

// StartCapture starts (or restarts) the camera.
func (c *Controller) StartCapture(ctx context.Context) error {
	return c.session.Start(ctx)
}

// StopCapture releases the camera.
func (c *Controller) StopCapture(ctx context.Context) {
	c.session.Stop(ctx)
}

// ToggleLight flips the torch when the camera has one.
func (c *Controller) ToggleLight(ctx context.Context) error {
	return c.session.ToggleLight(ctx)
}

// Arm opens a trigger gate for one scan. It reports false for a
// free-running gate.
func (c *Controller) Arm() bool {
	ok := c.gate.Arm()
	if ok {
		c.emit()
	}
	return ok
}

// Offer feeds a decode result to the gate directly, bypassing the camera.
func (c *Controller) Offer(payload, symbology string) bool {
	return c.gate.Offer(payload, symbology)
}

// Refresh reloads the list.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.pipe.Refresh(ctx)
}

// Delete removes one record.
func (c *Controller) Delete(ctx context.Context, id string) error {
	return c.pipe.Delete(ctx, id)
}

// ClearAll removes every record of the scope. Callers confirm with the
// user first.
func (c *Controller) ClearAll(ctx context.Context) (int64, error) {
	return c.pipe.ClearAll(ctx)
}

// Copy returns the payload of a visible record for the clipboard.
func (c *Controller) Copy(id string) (string, error) {
	code, ok := c.pipe.Get(id)
	if !ok {
		return "", model.NewError(model.KindNotFound, "copy", fmt.Errorf("no record %s", id))
	}
	return code.Payload, nil
}

// View returns the current view.
func (c *Controller) View() View {
	st := c.session.State()
	gs := c.gate.State()

	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		Scope:          c.pipe.Scope(),
		Status:         st.Status,
		LightAvailable: st.LightAvailable,
		LightOn:        st.LightOn,
		Armed:          gs.Locked,
		LastAccepted:   c.lastAccepted,
		Notice:         c.notice,
		Entries:        c.entries,
	}
	if st.Status == capture.Error {
		v.SessionError = st.LastError
	}
	return v
}

// Wait blocks until in-flight writes and refreshes are done.
func (c *Controller) Wait() {
	c.pipe.Wait()
	c.wg.Wait()
}

// Close stops the camera, the gate and the feed, then waits for
// in-flight work. It is safe to call more than once.
func (c *Controller) Close(ctx context.Context) {
	c.closeOnce.Do(func() {
		c.session.Stop(ctx)
		c.gate.Close()
		if c.binding != nil {
			c.binding.Close()
		}
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.cancel()
		c.wg.Wait()
		c.pipe.Close()
		c.logger.Debug("scanner closed")
	})
}

func (c *Controller) onAccept(ev gate.Event) {
	if _, err := c.pipe.Add(c.ctx, ev.Payload, ev.Symbology); err != nil {
		c.logger.Warn("scan not recorded", "payload", ev.Payload, "error", err)
		return
	}
	c.mu.Lock()
	c.lastAccepted = ev.Payload
	c.mu.Unlock()
	if c.opts.Beep != nil {
		c.opts.Beep(ev)
	}
	c.emit()
}

func (c *Controller) onDecodeTimeout(err error) {
	c.logger.Debug("trigger released", "reason", err)
	c.emit()
}

func (c *Controller) onEntries(entries []model.Entry) {
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	c.emit()
}

func (c *Controller) onNotice(n pipeline.Notice) {
	c.mu.Lock()
	c.notice = &n
	c.mu.Unlock()
	c.emit()
}

// scheduleRefresh runs a refresh off the feed's goroutine.
func (c *Controller) scheduleRefresh() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()
	go func() {
		defer c.wg.Done()
		if err := c.pipe.Refresh(c.ctx); err != nil && c.ctx.Err() == nil {
			c.logger.Warn("resync after remote change failed", "error", err)
		}
	}()
}

func (c *Controller) emit() {
	if c.opts.OnView == nil {
		return
	}
	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	c.opts.OnView(c.View())
}
