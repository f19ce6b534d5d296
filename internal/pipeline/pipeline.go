// Package pipeline keeps the visible scanned-code list of one store scope.
//
// Accepted scans are shown at once as tentative entries and written to the
// durable store in the background; each tentative entry resolves exactly
// once, into a confirmed entry on success or out of the list on failure.
// Deletes and clears are applied optimistically and rolled back when the
// store refuses them. Resyncs merge the server listing with pending
// entries without showing one scan twice.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/alfredjeanlab/storescan/internal/idgen"
	"github.com/alfredjeanlab/storescan/internal/model"
)

// DefaultProximity is how far apart the client and server capture times of
// one scan may be for a resync to recognise them as the same record.
const DefaultProximity = 10 * time.Second

// Store is the durable store the pipeline writes through. Every call is
// scoped server side.
type Store interface {
	Insert(ctx context.Context, code model.ScannedCode) (*model.ScannedCode, error)
	Delete(ctx context.Context, scope, id string) error
	ListByScope(ctx context.Context, scope string) ([]*model.ScannedCode, error)
	ClearScope(ctx context.Context, scope string) (int64, error)
}

// Notice reports a failed mutation. The list has already been rolled back
// when it is delivered; retrying is up to the user.
type Notice struct {
	Op   string // "add", "delete", "clear" or "refresh"
	ID   string // entry the failure concerns, if any
	Kind model.ErrorKind
	Err  error
}

func (n Notice) Error() string {
	if n.ID != "" {
		return fmt.Sprintf("%s %s: %v", n.Op, n.ID, n.Err)
	}
	return fmt.Sprintf("%s: %v", n.Op, n.Err)
}

// Options configure a Pipeline.
type Options struct {
	Scope  string
	Actor  string // recorded as created_by
	Origin string // client instance, recorded as origin

	// Proximity defaults to DefaultProximity.
	Proximity time.Duration

	// OnChange receives a copy of the list after every change. Calls are
	// serialised and never made with the pipeline's lock held, but
	// OnChange must not call back into the pipeline synchronously.
	OnChange func([]model.Entry)
	// OnNotice receives mutation failures.
	OnNotice func(Notice)

	Logger *slog.Logger
}

// Pipeline owns the visible list. It is safe for concurrent use.
type Pipeline struct {
	store  Store
	opts   Options
	logger *slog.Logger

	notifyMu sync.Mutex
	wg       sync.WaitGroup

	mu      sync.Mutex
	scope   string
	gen     uint64 // bumped on scope change
	entries []model.Entry
	// cancelled holds tentative IDs deleted before their insert resolved,
	// mapped to the scope they were written to.
	cancelled map[string]string
	// hidden holds server IDs with a delete in flight.
	hidden map[string]bool
	// clearing holds the tentative entries swept by a ClearAll that is
	// still in flight. An insert resolving meanwhile parks its result
	// there until the clear settles.
	clearing       map[string]*parked
	refreshSeq     uint64
	appliedRefresh uint64
	// mutations counts local changes. While listings are in flight, each
	// change is also journaled so a listing taken before it can be
	// brought up to date.
	mutations uint64
	listings  int
	journal   []change
	closed    bool
}

// parked is the outcome of an insert whose entry a pending clear removed.
type parked struct {
	resolved bool
	code     *model.ScannedCode
	err      error
}

// New returns an empty pipeline for opts.Scope.
func New(store Store, opts Options) *Pipeline {
	if opts.Proximity <= 0 {
		opts.Proximity = DefaultProximity
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:     store,
		opts:      opts,
		logger:    logger,
		scope:     opts.Scope,
		cancelled: make(map[string]string),
		hidden:    make(map[string]bool),
		clearing:  make(map[string]*parked),
	}
}

// Scope returns the active store scope.
func (p *Pipeline) Scope() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scope
}

// Snapshot returns a copy of the list.
func (p *Pipeline) Snapshot() []model.Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.entries)
}

// Get returns the visible record with the given ID.
func (p *Pipeline) Get(id string) (model.ScannedCode, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i := indexOf(p.entries, id); i >= 0 {
		return p.entries[i].Code, true
	}
	return model.ScannedCode{}, false
}

// SetScope switches the pipeline to another scope and empties the list.
// Writes still in flight for the old scope resolve without touching it.
func (p *Pipeline) SetScope(scope string) {
	p.mu.Lock()
	if scope == p.scope {
		p.mu.Unlock()
		return
	}
	p.scope = scope
	p.gen++
	p.entries = nil
	p.hidden = make(map[string]bool)
	p.journal = nil
	p.mu.Unlock()
	p.logger.Info("pipeline scope changed", "scope", scope)
	p.notify()
}

// Add shows a tentative record for the scan and starts the durable write.
// It returns the tentative ID. The write outlives ctx's cancellation.
func (p *Pipeline) Add(ctx context.Context, payload string, symbology model.Symbology) (string, error) {
	tempID, err := idgen.Tentative()
	if err != nil {
		return "", err
	}
	if symbology == "" {
		symbology = model.SymbologyUnknown
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return "", errors.New("pipeline closed")
	}
	code := model.ScannedCode{
		ID:         tempID,
		Payload:    payload,
		Symbology:  symbology,
		CapturedAt: time.Now(),
		StoreScope: p.scope,
		CreatedBy:  p.opts.Actor,
		Origin:     p.opts.Origin,
	}
	if err := model.ValidateScannedCode(&code); err != nil {
		p.mu.Unlock()
		return "", model.NewError(model.KindInvalid, "add", err)
	}
	p.entries = insertTentative(p.entries, model.TentativeEntry(code))
	gen := p.gen
	p.wg.Add(1)
	p.mu.Unlock()
	p.notify()

	go p.write(context.WithoutCancel(ctx), gen, code)
	return tempID, nil
}

// write performs the durable insert of a tentative record and resolves it.
func (p *Pipeline) write(ctx context.Context, gen uint64, code model.ScannedCode) {
	defer p.wg.Done()
	tempID := code.ID
	confirmed, err := p.store.Insert(ctx, code)

	p.mu.Lock()
	if w, ok := p.clearing[tempID]; ok {
		w.resolved, w.err = true, err
		switch {
		case err == nil && confirmed != nil:
			w.code = confirmed
			p.hidden[confirmed.ID] = true
		case err == nil:
			w.err = errors.New("store returned no record")
		}
		p.mu.Unlock()
		return
	}
	if scope, ok := p.cancelled[tempID]; ok {
		delete(p.cancelled, tempID)
		if err != nil || confirmed == nil {
			p.mu.Unlock()
			return
		}
		p.hidden[confirmed.ID] = true
		p.mu.Unlock()
		p.purge(ctx, gen, scope, confirmed.ID)
		return
	}
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	if err != nil || confirmed == nil {
		if err == nil {
			err = errors.New("store returned no record")
		}
		p.entries, _ = resolveFailure(p.entries, tempID)
		p.mu.Unlock()
		p.logger.Warn("scanned code write failed", "id", tempID, "payload", code.Payload, "error", err)
		p.notify()
		p.report(Notice{Op: "add", ID: tempID, Kind: kindOf(err), Err: err})
		return
	}
	p.entries, _ = resolveSuccess(p.entries, tempID, *confirmed)
	p.recordLocked(gen, change{kind: changeConfirmed, code: *confirmed})
	p.mu.Unlock()
	p.notify()
}

// purge deletes the server record of an entry that was deleted while its
// insert was still in flight.
func (p *Pipeline) purge(ctx context.Context, gen uint64, scope, id string) {
	err := p.store.Delete(ctx, scope, id)
	if errors.Is(err, model.ErrNotFound) {
		err = nil
	}
	p.mu.Lock()
	delete(p.hidden, id)
	if err == nil {
		p.recordLocked(gen, change{kind: changeDeleted, code: model.ScannedCode{ID: id}})
	}
	p.mu.Unlock()
	if err != nil {
		p.logger.Warn("failed to delete cancelled scan", "id", id, "scope", scope, "error", err)
		p.report(Notice{Op: "delete", ID: id, Kind: kindOf(err), Err: err})
	}
}

// Delete removes an entry at once and then deletes it durably. On failure
// the entry is restored at its old position, a Notice is sent, and the
// error is returned. Deleting a tentative entry cancels it: the record its
// insert creates is deleted as soon as the insert resolves.
func (p *Pipeline) Delete(ctx context.Context, id string) error {
	p.mu.Lock()
	list, removed, idx, ok := removeByID(p.entries, id)
	if !ok {
		p.mu.Unlock()
		return model.NewError(model.KindNotFound, "delete", fmt.Errorf("no entry %s", id))
	}
	p.entries = list
	if removed.IsTentative() {
		p.cancelled[id] = removed.Code.StoreScope
		p.mu.Unlock()
		p.notify()
		return nil
	}
	p.hidden[id] = true
	scope, gen := p.scope, p.gen
	p.mu.Unlock()
	p.notify()

	err := p.store.Delete(ctx, scope, id)
	if errors.Is(err, model.ErrNotFound) {
		// Somebody else deleted it first.
		err = nil
	}

	p.mu.Lock()
	delete(p.hidden, id)
	if err == nil {
		p.recordLocked(gen, change{kind: changeDeleted, code: model.ScannedCode{ID: id}})
	}
	if err == nil || gen != p.gen {
		p.mu.Unlock()
		return err
	}
	p.entries = restoreAt(p.entries, removed, idx)
	p.mu.Unlock()
	p.logger.Warn("scanned code delete failed", "id", id, "error", err)
	p.notify()
	p.report(Notice{Op: "delete", ID: id, Kind: kindOf(err), Err: err})
	return err
}

// ClearAll empties the scope. The list is cleared at once and restored if
// the store refuses. Pending tentative entries are swept too: an insert
// that resolves while the clear is in flight is held until the clear
// settles, then deleted durably if the clear succeeded or shown as
// confirmed if it failed. Inserts still pending once the clear succeeds
// are cancelled.
func (p *Pipeline) ClearAll(ctx context.Context) (int64, error) {
	p.mu.Lock()
	before := p.entries
	p.entries = nil
	for _, e := range before {
		if e.IsTentative() {
			p.clearing[e.ID()] = &parked{}
		} else {
			p.hidden[e.ID()] = true
		}
	}
	scope, gen := p.scope, p.gen
	p.mu.Unlock()
	p.notify()

	n, err := p.store.ClearScope(ctx, scope)

	p.mu.Lock()
	if err == nil {
		p.recordLocked(gen, change{kind: changeCleared})
	}
	// Entries added meanwhile stay at the head.
	restored := slices.Clone(p.entries)
	var (
		purge  []model.ScannedCode
		failed []Notice
	)
	for _, e := range before {
		id := e.ID()
		if !e.IsTentative() {
			delete(p.hidden, id)
			if err != nil {
				restored = restoreAt(restored, e, len(restored))
			}
			continue
		}
		w := p.clearing[id]
		delete(p.clearing, id)
		switch {
		case !w.resolved && err == nil:
			p.cancelled[id] = e.Code.StoreScope
		case !w.resolved:
			restored = restoreAt(restored, e, len(restored))
		case w.code == nil:
			if err != nil {
				failed = append(failed, Notice{Op: "add", ID: id, Kind: kindOf(w.err), Err: w.err})
			}
		case err == nil:
			// Stays hidden until purged.
			purge = append(purge, *w.code)
		default:
			delete(p.hidden, w.code.ID)
			restored = restoreAt(restored, model.ConfirmedEntry(*w.code), len(restored))
			p.recordLocked(gen, change{kind: changeConfirmed, code: *w.code})
		}
	}
	if err == nil {
		p.mu.Unlock()
		p.logger.Info("scope cleared", "scope", scope, "deleted", n)
		for _, c := range purge {
			p.purge(context.WithoutCancel(ctx), gen, c.StoreScope, c.ID)
		}
		return n, nil
	}
	if gen != p.gen {
		p.mu.Unlock()
		return 0, err
	}
	p.entries = restored
	p.mu.Unlock()
	p.logger.Warn("scope clear failed", "scope", scope, "error", err)
	p.notify()
	p.report(Notice{Op: "clear", Kind: kindOf(err), Err: err})
	for _, n := range failed {
		p.report(n)
	}
	return 0, err
}

// Refresh re-reads the scope and merges it into the list. A listing that
// completes after a newer one has been applied, or after a scope change,
// is discarded. Local changes made while the listing was in flight are
// replayed onto it, so a listing never undoes them.
func (p *Pipeline) Refresh(ctx context.Context) error {
	p.mu.Lock()
	scope := p.scope
	if scope == "" {
		p.mu.Unlock()
		return model.NewError(model.KindInvalid, "refresh", errors.New("no store scope"))
	}
	p.refreshSeq++
	seq, gen, since := p.refreshSeq, p.gen, p.mutations
	p.listings++
	p.mu.Unlock()

	codes, err := p.store.ListByScope(ctx, scope)

	p.mu.Lock()
	changes := p.changesSince(since)
	p.listings--
	if p.listings == 0 {
		p.journal = nil
	}
	if gen != p.gen || seq < p.appliedRefresh {
		p.mu.Unlock()
		return nil
	}
	if err != nil {
		p.mu.Unlock()
		if ctx.Err() != nil {
			return err
		}
		p.logger.Warn("scope refresh failed", "scope", scope, "error", err)
		p.report(Notice{Op: "refresh", Kind: kindOf(err), Err: err})
		return err
	}
	p.appliedRefresh = seq
	p.entries = mergeRemote(p.entries, replay(codes, changes), p.opts.Proximity, p.hidden)
	p.mu.Unlock()
	p.notify()
	return nil
}

// recordLocked counts a local change made under scope generation gen and
// journals it for the listings in flight. Changes from an old scope are
// ignored.
func (p *Pipeline) recordLocked(gen uint64, c change) {
	if gen != p.gen {
		return
	}
	p.mutations++
	if p.listings > 0 {
		c.seq = p.mutations
		p.journal = append(p.journal, c)
	}
}

func (p *Pipeline) changesSince(seq uint64) []change {
	i := slices.IndexFunc(p.journal, func(c change) bool { return c.seq > seq })
	if i < 0 {
		return nil
	}
	return slices.Clone(p.journal[i:])
}

// Wait blocks until every durable write started so far has resolved.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Close refuses further adds and waits for in-flight writes.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pipeline) notify() {
	if p.opts.OnChange == nil {
		return
	}
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
	p.opts.OnChange(p.Snapshot())
}

func (p *Pipeline) report(n Notice) {
	if p.opts.OnNotice != nil {
		p.opts.OnNotice(n)
	}
}

func kindOf(err error) model.ErrorKind {
	if k := model.KindOf(err); k != "" {
		return k
	}
	return model.KindNetworkFailure
}
