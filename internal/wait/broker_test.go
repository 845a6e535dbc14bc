package wait

import (
	"testing"
	"time"

	"github.com/opcoord/opcoord/internal/core"
)

func TestBroker_FanOut(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	all, unsubAll, err := b.SubscribeAll()
	if err != nil {
		t.Fatalf("SubscribeAll error: %v", err)
	}
	defer unsubAll()

	keyed, unsubKeyed, err := b.SubscribeKey("order-1")
	if err != nil {
		t.Fatalf("SubscribeKey error: %v", err)
	}
	defer unsubKeyed()

	b.Publish(core.NewSessionEvent(core.EventSessionRegistered, "s1", "order-1", core.StatusWaiting))
	b.Publish(core.NewSessionEvent(core.EventSessionRegistered, "s2", "order-2", core.StatusWaiting))

	for i := 0; i < 2; i++ {
		select {
		case <-all:
		case <-time.After(time.Second):
			t.Fatal("all-events subscriber missed an event")
		}
	}

	select {
	case event := <-keyed:
		if event.CorrelationKey != "order-1" {
			t.Errorf("keyed subscriber got key %q, want order-1", event.CorrelationKey)
		}
	case <-time.After(time.Second):
		t.Fatal("keyed subscriber missed its event")
	}
	select {
	case event := <-keyed:
		t.Fatalf("keyed subscriber received foreign event %+v", event)
	default:
	}
}

func TestBroker_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ch, unsubscribe, err := b.SubscribeAll()
	if err != nil {
		t.Fatalf("SubscribeAll error: %v", err)
	}
	unsubscribe()

	// Publish after unsubscribe must not panic or deliver.
	b.Publish(core.NewSessionEvent(core.EventSessionResolved, "s1", "order-1", core.StatusSatisfied))

	if _, open := <-ch; open {
		t.Error("unsubscribed channel still delivered an event")
	}
}

func TestBroker_UnsubscribeAfterCloseDoesNotPanic(t *testing.T) {
	b := NewBroker()

	_, unsubscribe, err := b.SubscribeAll()
	if err != nil {
		t.Fatalf("SubscribeAll error: %v", err)
	}

	// Shutdown ordering: the broker closes first, then a draining subscriber
	// runs its deferred unsubscribe. Neither call may close the channel twice.
	if err := b.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	unsubscribe()
	unsubscribe()
	if err := b.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
}

func TestBroker_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	_, unsubscribe, err := b.SubscribeAll()
	if err != nil {
		t.Fatalf("SubscribeAll error: %v", err)
	}
	defer unsubscribe()

	// Overfill the subscriber buffer; Publish must return anyway.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			b.Publish(core.NewSessionEvent(core.EventSessionRegistered, "s", "k", core.StatusWaiting))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}
}
