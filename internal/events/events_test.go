package events

import (
	"testing"
	"time"
)

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	bus.PublishNewMessage("first")
	bus.PublishMessageDeleted(42)

	ev := <-bus.Events()
	if ev.Kind != KindNewMessage || ev.Payload != "first" {
		t.Errorf("first event = %+v", ev)
	}

	ev = <-bus.Events()
	if ev.Kind != KindMessageDeleted {
		t.Fatalf("second event kind = %q", ev.Kind)
	}
	payload, ok := ev.Payload.(MessageDeletedPayload)
	if !ok || payload.MessageID != 42 {
		t.Errorf("deletion payload = %+v, want MessageID 42", ev.Payload)
	}
}

func TestBusNeverBlocksPublisher(t *testing.T) {
	bus := NewBus(2)
	defer bus.Close()

	done := make(chan struct{})
	go func() {
		// No consumer; publishing past the buffer must drop, not block.
		for i := 0; i < 100; i++ {
			bus.PublishNewMessage(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full bus")
	}

	if got := len(bus.Events()); got != 2 {
		t.Errorf("buffered events = %d, want 2", got)
	}
}

func TestBusCloseEndsConsumer(t *testing.T) {
	bus := NewBus(4)
	bus.PublishNewMessage("last words")
	bus.Close()

	var received []Event
	for ev := range bus.Events() {
		received = append(received, ev)
	}
	if len(received) != 1 {
		t.Errorf("drained %d events, want 1", len(received))
	}
}

func TestNopPublisher(t *testing.T) {
	var pub Publisher = NopPublisher{}
	// Must not panic or block.
	pub.PublishNewMessage("ignored")
	pub.PublishMessageDeleted(1)
}
