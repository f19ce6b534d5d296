package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// subscriptionBuffer is the channel capacity of one subscription. When it
// is full further messages are dropped; feed consumers only need to learn
// that something changed.
const subscriptionBuffer = 64

// NATSPublisher publishes JSON events on NATS subjects.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, append([]nats.Option{nats.Name("storescan-publisher")}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

// Publish sends event on topic. Scoped events carry their exact scope in
// the HeaderScope header.
func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	msg := nats.NewMsg(topic)
	msg.Data = data
	if s, ok := event.(Scoped); ok && s.EventScope() != "" {
		msg.Header.Set(HeaderScope, s.EventScope())
	}
	return p.conn.PublishMsg(msg)
}

// Close flushes pending publishes, best effort, and closes the
// connection.
func (p *NATSPublisher) Close() error {
	if !p.conn.IsClosed() {
		_ = p.conn.FlushTimeout(2 * time.Second)
		p.conn.Close()
	}
	return nil
}

// NATSSubscriber receives events from NATS. It reconnects forever.
type NATSSubscriber struct {
	conn *nats.Conn
}

// NewNATSSubscriber connects to the NATS server at url. opts are applied
// after the reconnect defaults, e.g. disconnect and reconnect handlers.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	defaults := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSSubscriber{conn: nc}, nil
}

// Subscribe returns a channel of messages whose subject matches pattern,
// which may use NATS wildcards. The subscription is registered on the
// server before Subscribe returns.
func (s *NATSSubscriber) Subscribe(pattern string) (<-chan Message, func(), error) {
	sub := &natsSubscription{ch: make(chan Message, subscriptionBuffer)}
	ns, err := s.conn.Subscribe(pattern, sub.deliver)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribing to %s: %w", pattern, err)
	}
	sub.ns = ns
	if err := s.conn.Flush(); err != nil {
		sub.cancel()
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}
	return sub.ch, sub.cancel, nil
}

// Close closes the connection. Open subscriptions stop delivering but
// their channels stay open until cancelled.
func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}

type natsSubscription struct {
	ns *nats.Subscription
	ch chan Message

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func (s *natsSubscription) deliver(msg *nats.Msg) {
	m := Message{Subject: msg.Subject, Data: msg.Data}
	if msg.Header != nil {
		m.Scope = msg.Header.Get(HeaderScope)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- m:
	default:
	}
}

// cancel unsubscribes, discards undelivered messages and closes the
// channel. It is idempotent.
func (s *natsSubscription) cancel() {
	s.once.Do(func() {
		_ = s.ns.Unsubscribe()
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true
		for {
			select {
			case <-s.ch:
			default:
				close(s.ch)
				return
			}
		}
	})
}
