package feed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/storescan/internal/client"
	"github.com/alfredjeanlab/storescan/internal/events"
	"github.com/alfredjeanlab/storescan/internal/model"
)

// SSEOptions configure an SSEFeed.
type SSEOptions struct {
	// Debounce defaults to DefaultDebounce. Negative disables it.
	Debounce time.Duration
	// MinBackoff and MaxBackoff bound the reconnect delay, which doubles
	// after every failed attempt. Defaults are 500ms and 30s.
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// HTTPClient must not have a timeout. Defaults to a fresh client.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// SSEFeed is a Feed over the server's /v1/events/stream endpoint. It
// resumes with Last-Event-ID after a dropped connection and notifies the
// subscriber at once on every reconnect.
type SSEFeed struct {
	api  *client.HTTPClient
	opts SSEOptions
}

// NewSSEFeed returns a feed using api's base URL and credentials.
func NewSSEFeed(api *client.HTTPClient, opts SSEOptions) *SSEFeed {
	if opts.Debounce == 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = max(30*time.Second, opts.MinBackoff)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &SSEFeed{api: api, opts: opts}
}

func (f *SSEFeed) Subscribe(scope string, category events.Category, onChange func()) (Subscription, error) {
	if scope == "" {
		return nil, errors.New("feed: store scope is required")
	}
	if !category.Valid() {
		return nil, errors.New("feed: unknown category " + string(category))
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &sseSubscription{
		feed:   f,
		scope:  scope,
		path:   "/v1/events/stream?scope=" + url.QueryEscape(scope) + "&topics=" + url.QueryEscape(events.ScopePattern(scope, category)),
		deb:    newDebouncer(f.opts.Debounce, onChange),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(ctx)
	return s, nil
}

// errRefused marks responses that retrying cannot fix.
var errRefused = errors.New("stream refused")

type sseSubscription struct {
	feed   *SSEFeed
	scope  string
	path   string
	deb    *debouncer
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	lastID    string // only touched by run
	connected bool
}

func (s *sseSubscription) run(ctx context.Context) {
	defer close(s.done)
	log := s.feed.opts.Logger.With("scope", s.scope)
	backoff := s.feed.opts.MinBackoff
	for {
		err := s.stream(ctx, func() { backoff = s.feed.opts.MinBackoff })
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, errRefused) {
			log.Error("event stream refused, giving up", "error", err)
			return
		}
		log.Warn("event stream dropped, reconnecting", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, s.feed.opts.MaxBackoff)
	}
}

// stream holds one connection until it ends. onConnect runs once the
// server accepted the request.
func (s *sseSubscription) stream(ctx context.Context, onConnect func()) error {
	req, err := s.feed.api.NewRequest(ctx, http.MethodGet, s.path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.lastID != "" {
		req.Header.Set("Last-Event-ID", s.lastID)
	}

	resp, err := s.feed.opts.HTTPClient.Do(req)
	if err != nil {
		return model.NewError(model.KindNetworkFailure, "stream", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := model.NewError(model.KindForStatus(resp.StatusCode), "stream",
			fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusBadRequest:
			return fmt.Errorf("%w: %w", errRefused, err)
		}
		return err
	}

	onConnect()
	if s.connected {
		// Changes may have been missed beyond what the server replays.
		s.deb.flush()
	}
	s.connected = true

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var id, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "id:"):
			id = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimPrefix(line, "data:")
		case line == "" && data != "":
			if id != "" {
				s.lastID = id
			}
			if sc := payloadScope([]byte(data)); sc == "" || sc == s.scope {
				s.deb.trigger()
			}
			id, data = "", ""
		}
	}
	if err := scanner.Err(); err != nil {
		return model.NewError(model.KindNetworkFailure, "stream", err)
	}
	return model.NewError(model.KindNetworkFailure, "stream", io.ErrUnexpectedEOF)
}

func (s *sseSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		s.deb.stop()
	})
}
