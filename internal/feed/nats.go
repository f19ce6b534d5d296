package feed

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/storescan/internal/events"
)

// NATSFeed is a Feed over the server's NATS subjects.
type NATSFeed struct {
	sub      events.Subscriber
	debounce time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	subs map[*natsSubscription]struct{}
	own  bool // sub was dialled by DialNATS
}

// NATSOptions configure a NATSFeed.
type NATSOptions struct {
	// Debounce defaults to DefaultDebounce. Negative disables it.
	Debounce time.Duration
	Logger   *slog.Logger
}

// NewNATSFeed returns a feed reading from sub.
func NewNATSFeed(sub events.Subscriber, opts NATSOptions) *NATSFeed {
	if opts.Debounce == 0 {
		opts.Debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSFeed{
		sub:      sub,
		debounce: opts.Debounce,
		logger:   logger,
		subs:     make(map[*natsSubscription]struct{}),
	}
}

// DialNATS connects to the NATS server at url. Every live subscription is
// notified at once after a reconnect, since changes may have been missed
// while disconnected.
func DialNATS(url string, opts NATSOptions) (*NATSFeed, error) {
	f := NewNATSFeed(nil, opts)
	f.own = true
	sub, err := events.NewNATSSubscriber(url,
		nats.Name("storescan-feed"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				f.logger.Warn("feed disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			f.logger.Info("feed reconnected", "url", nc.ConnectedUrl())
			f.resyncAll()
		}),
	)
	if err != nil {
		return nil, err
	}
	f.sub = sub
	return f, nil
}

func (f *NATSFeed) Subscribe(scope string, category events.Category, onChange func()) (Subscription, error) {
	if scope == "" {
		return nil, errors.New("feed: store scope is required")
	}
	if !category.Valid() {
		return nil, errors.New("feed: unknown category " + string(category))
	}
	ch, cancel, err := f.sub.Subscribe(events.ScopePattern(scope, category))
	if err != nil {
		return nil, err
	}
	s := &natsSubscription{
		feed:   f,
		scope:  scope,
		cancel: cancel,
		deb:    newDebouncer(f.debounce, onChange),
		done:   make(chan struct{}),
	}
	f.mu.Lock()
	f.subs[s] = struct{}{}
	f.mu.Unlock()

	go s.run(ch)
	f.logger.Debug("feed subscribed", "scope", scope, "category", category)
	return s, nil
}

func (f *NATSFeed) resyncAll() {
	f.mu.Lock()
	subs := make([]*natsSubscription, 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()
	for _, s := range subs {
		s.deb.flush()
	}
}

// Close closes the NATS connection if DialNATS opened it. Subscriptions
// should be released first.
func (f *NATSFeed) Close() error {
	if f.own {
		return f.sub.Close()
	}
	return nil
}

type natsSubscription struct {
	feed   *NATSFeed
	scope  string
	cancel func()
	deb    *debouncer
	done   chan struct{}
	once   sync.Once
}

func (s *natsSubscription) run(ch <-chan events.Message) {
	defer close(s.done)
	for m := range ch {
		// Subjects fold scope case and punctuation. The header carries the
		// exact scope; older publishers only put it in the payload.
		sc := m.Scope
		if sc == "" {
			sc = payloadScope(m.Data)
		}
		if sc != "" && sc != s.scope {
			continue
		}
		s.deb.trigger()
	}
}

func (s *natsSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs, s)
		s.feed.mu.Unlock()
		s.cancel()
		<-s.done
		s.deb.stop()
	})
}
