package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/storescan/internal/events"
	"github.com/alfredjeanlab/storescan/internal/model"
	"github.com/alfredjeanlab/storescan/internal/presence"
)

const (
	// streamHistory is how many recent events are kept for Last-Event-ID
	// resumption.
	streamHistory = 1000

	streamKeepalive = 15 * time.Second
	streamRetry     = 2 * time.Second

	// streamBuffer is the per-stream backlog; a stream that falls further
	// behind loses events and recovers by refetching.
	streamBuffer = 64
)

// streamEvent is one published change as sent on /v1/events/stream.
type streamEvent struct {
	Seq   uint64
	Topic string
	Scope string // exact store scope; the topic only carries its folded token
	Data  []byte
}

// streamFilter selects the events one stream receives. The zero value
// accepts everything.
type streamFilter struct {
	Scope    string
	Patterns []string
}

func (f streamFilter) accepts(e *streamEvent) bool {
	if f.Scope != "" && e.Scope != f.Scope {
		return false
	}
	if len(f.Patterns) == 0 {
		return true
	}
	return slices.ContainsFunc(f.Patterns, func(p string) bool {
		return events.MatchSubject(p, e.Topic)
	})
}

type stream struct {
	filter streamFilter
	out    chan *streamEvent
}

// streamHub fans published changes out to open event streams and keeps a
// bounded history for resumption. One lock covers both so a resuming
// stream sees neither a gap nor a duplicate between backlog and live
// events.
type streamHub struct {
	mu      sync.Mutex
	seq     uint64
	streams map[*stream]struct{}
	recent  []*streamEvent
	oldest  int // index of the oldest event once recent is full
}

func newStreamHub() *streamHub {
	return &streamHub{
		streams: make(map[*stream]struct{}),
		recent:  make([]*streamEvent, 0, streamHistory),
	}
}

// publish numbers an event, records it and offers it to every matching
// stream without blocking.
func (h *streamHub) publish(topic, scope string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	e := &streamEvent{Seq: h.seq, Topic: topic, Scope: scope, Data: data}
	if len(h.recent) < streamHistory {
		h.recent = append(h.recent, e)
	} else {
		h.recent[h.oldest] = e
		h.oldest = (h.oldest + 1) % streamHistory
	}

	for s := range h.streams {
		if !s.filter.accepts(e) {
			continue
		}
		select {
		case s.out <- e:
		default:
		}
	}
}

// resume attaches a stream and, when after is non-nil, returns the held
// events past *after that the filter accepts.
func (h *streamHub) resume(f streamFilter, after *uint64) (*stream, []*streamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := &stream{filter: f, out: make(chan *streamEvent, streamBuffer)}
	h.streams[s] = struct{}{}
	if after == nil {
		return s, nil
	}
	var backlog []*streamEvent
	for _, e := range h.sinceLocked(*after) {
		if f.accepts(e) {
			backlog = append(backlog, e)
		}
	}
	return s, backlog
}

func (h *streamHub) detach(s *stream) {
	h.mu.Lock()
	delete(h.streams, s)
	h.mu.Unlock()
}

// since returns the held events with a sequence number above seq, oldest
// first.
func (h *streamHub) since(seq uint64) []*streamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sinceLocked(seq)
}

func (h *streamHub) sinceLocked(seq uint64) []*streamEvent {
	var out []*streamEvent
	n := len(h.recent)
	for i := range n {
		if e := h.recent[(h.oldest+i)%n]; e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// streamFilterFrom reads ?scope= and ?topics= and checks them against the
// caller's grant. Scoped tokens must name their scope.
func streamFilterFrom(r *http.Request) (streamFilter, error) {
	q := r.URL.Query()
	f := streamFilter{Scope: q.Get("scope")}
	if f.Scope != "" {
		if err := checkScope(r.Context(), f.Scope); err != nil {
			return streamFilter{}, err
		}
	} else if !scopeAllowed(r.Context(), "") {
		return streamFilter{}, model.NewError(model.KindPermissionDenied, "stream",
			errors.New("scope is required for this token"))
	}
	for _, p := range strings.Split(q.Get("topics"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			f.Patterns = append(f.Patterns, p)
		}
	}
	return f, nil
}

// lastEventID returns the Last-Event-ID header as a sequence number, or
// nil when absent or malformed.
func lastEventID(r *http.Request) *uint64 {
	v := r.Header.Get("Last-Event-ID")
	if v == "" {
		return nil
	}
	seq, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return nil
	}
	return &seq
}

// eventWriter encodes text/event-stream frames and flushes after each.
type eventWriter struct {
	w io.Writer
	f http.Flusher
}

func (ew eventWriter) retry(d time.Duration) {
	fmt.Fprintf(ew.w, "retry:%d\n\n", d.Milliseconds())
	ew.f.Flush()
}

func (ew eventWriter) send(e *streamEvent) {
	fmt.Fprintf(ew.w, "id:%d\nevent:%s\ndata:%s\n\n", e.Seq, e.Topic, e.Data)
	ew.f.Flush()
}

func (ew eventWriter) keepalive() {
	io.WriteString(ew.w, ":keepalive\n\n")
	ew.f.Flush()
}

// handleEventStream serves GET /v1/events/stream. A watcher that names its
// scope shows up in that scope's client roster while connected.
func (s *ScanServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	filter, err := streamFilterFrom(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	st, backlog := s.sseHub.resume(filter, lastEventID(r))
	defer s.sseHub.detach(st)

	if filter.Scope != "" {
		c := callerFrom(r)
		if c.Origin == "" {
			c.Origin = r.URL.Query().Get("origin")
		}
		act := presence.Activity{Scope: filter.Scope, Origin: c.Origin, Actor: c.Actor, Action: presence.ActionWatch}
		s.Presence.Record(act)
		act.Action = presence.ActionLeave
		defer s.Presence.Record(act)
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ew := eventWriter{w: w, f: flusher}
	ew.retry(streamRetry)
	for _, e := range backlog {
		ew.send(e)
	}

	tick := time.NewTicker(streamKeepalive)
	defer tick.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-st.out:
			ew.send(e)
		case <-tick.C:
			ew.keepalive()
		}
	}
}
