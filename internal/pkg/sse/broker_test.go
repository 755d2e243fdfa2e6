package sse

import (
	"errors"
	"testing"
	"time"
)

func TestSubscribeRejectsEmptyID(t *testing.T) {
	b := New()
	if _, err := b.Subscribe(""); !errors.Is(err, ErrEmptyID) {
		t.Fatalf("expected ErrEmptyID, got %v", err)
	}
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New()
	ch, err := b.Subscribe("opt-1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	b.Publish(Event{Type: EventProgress, ID: "opt-1", Percent: 50})

	select {
	case ev := <-ch:
		if ev.Percent != 50 {
			t.Fatalf("expected percent 50, got %d", ev.Percent)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
	}
}

func TestPublishFansOutToMultipleSubscribers(t *testing.T) {
	b := New()
	ch1, _ := b.Subscribe("opt-1")
	ch2, _ := b.Subscribe("opt-1")

	b.Publish(Event{Type: EventProgress, ID: "opt-1", Percent: 10})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Percent != 10 {
				t.Fatalf("expected percent 10, got %d", ev.Percent)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event")
		}
	}
}

func TestPublishToUnknownIDIsANoop(t *testing.T) {
	b := New()
	// Should not panic or block.
	b.Publish(Event{Type: EventProgress, ID: "nonexistent"})
}

func TestTerminalEventClosesSubscribersAfterGrace(t *testing.T) {
	b := New()
	ch, _ := b.Subscribe("opt-1")

	b.Publish(Event{Type: EventComplete, ID: "opt-1"})

	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed before delivering the terminal event")
		}
		if ev.Type != EventComplete {
			t.Fatalf("expected Complete event, got %v", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for terminal event")
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected no further events after terminal")
		}
	case <-time.After(GracePeriod + 2*time.Second):
		t.Fatalf("expected channel to close within the grace period")
	}
}
