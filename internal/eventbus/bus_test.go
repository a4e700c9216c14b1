package eventbus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(Event{Type: TypeBuildStarted, Data: BuildStarted{Project: "web-auth", BuildID: "abcd1234"}})

	select {
	case ev := <-ch:
		if ev.Type != TypeBuildStarted {
			t.Fatalf("type = %q", ev.Type)
		}
		if ev.Time.IsZero() {
			t.Fatal("publish did not stamp time")
		}
		started, ok := ev.Data.(BuildStarted)
		if !ok || started.Project != "web-auth" {
			t.Fatalf("payload = %+v", ev.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	// Second publish must not block even though nobody reads.
	done := make(chan struct{})
	go func() {
		b.Publish(Event{Type: TypeBuildFinished})
		b.Publish(Event{Type: TypeBuildFinished})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
	if len(ch) != 1 {
		t.Fatalf("expected exactly 1 buffered event, got %d", len(ch))
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub() // double-unsubscribe must be safe

	b.Publish(Event{Type: TypeBuildFinished})
	if _, open := <-ch; open {
		t.Fatal("channel still open after unsubscribe")
	}
}
