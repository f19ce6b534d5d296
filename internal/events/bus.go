package events

import "context"

// HeaderScope carries the exact store scope of an event. Subjects only
// carry the folded ScopeToken, so consumers filter on this header.
const HeaderScope = "Storescan-Scope"

// Scoped is implemented by events that belong to one store scope.
type Scoped interface {
	EventScope() string
}

// Message is one event received from the bus.
type Message struct {
	Subject string
	// Scope is the exact store scope, or "" when the publisher did not
	// send one.
	Scope string
	Data  []byte
}

// Publisher emits events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Subscriber receives events from the bus.
type Subscriber interface {
	// Subscribe delivers messages matching pattern on the returned
	// channel until the returned cancel function is called, which closes
	// the channel.
	Subscribe(pattern string) (<-chan Message, func(), error)
	Close() error
}

// Discard is a Publisher that drops every event. The server uses it when
// no NATS server is configured.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, string, any) error { return nil }
func (discard) Close() error                               { return nil }
