// Package events carries domain events from the message ledger to whatever
// transport fans them out. The ledger publishes; it never sees a connection.
package events

import "github.com/flitdev/flit/internal/logger"

// Kind tags an event for dispatch.
type Kind string

const (
	KindNewMessage     Kind = "new_message"
	KindMessageDeleted Kind = "message_deleted"
)

// Event is a tagged domain event.
type Event struct {
	Kind    Kind
	Payload any
}

// MessageDeletedPayload identifies a deleted message.
type MessageDeletedPayload struct {
	MessageID uint `json:"message_id"`
}

// Publisher is the ledger-facing side of the bus.
type Publisher interface {
	PublishNewMessage(payload any)
	PublishMessageDeleted(messageID uint)
}

// Bus is a buffered single-consumer event channel. Publishing never blocks:
// if the buffer is full the event is dropped and logged, so a slow or absent
// consumer cannot stall a message send.
type Bus struct {
	ch chan Event
}

// NewBus creates a bus with the given buffer size.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{ch: make(chan Event, buffer)}
}

// Events exposes the consumer side of the bus.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Close shuts the bus down; the consumer loop drains and exits.
func (b *Bus) Close() {
	close(b.ch)
}

func (b *Bus) publish(ev Event) {
	select {
	case b.ch <- ev:
	default:
		logger.Warn("event bus full, dropping event", "kind", string(ev.Kind))
	}
}

// PublishNewMessage enqueues a new_message event.
func (b *Bus) PublishNewMessage(payload any) {
	b.publish(Event{Kind: KindNewMessage, Payload: payload})
}

// PublishMessageDeleted enqueues a message_deleted event.
func (b *Bus) PublishMessageDeleted(messageID uint) {
	b.publish(Event{Kind: KindMessageDeleted, Payload: MessageDeletedPayload{MessageID: messageID}})
}

// NopPublisher discards all events. Used by tests and by callers that have no
// realtime transport attached.
type NopPublisher struct{}

func (NopPublisher) PublishNewMessage(any) {}

func (NopPublisher) PublishMessageDeleted(uint) {}
