// Package sse is a keyed multicast broker of optimization progress events.
// Each OptimizationId gets its own set of subscriber channels; a terminal
// event (Complete or Error) triggers a short grace period and then closes
// every subscriber for that id. Cross-instance fanout is out of scope here
// — this broker is process-local, matching the single-node deployment the
// rest of the pipeline assumes.
package sse

import (
	"errors"
	"sync"
	"time"
)

// EventType tags an OptimizationEvent's variant.
type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// ErrEmptyID is returned by Subscribe when called with an empty id.
var ErrEmptyID = errors.New("sse: id must not be empty")

// GracePeriod is how long the broker keeps a terminal id's subscribers open
// after the terminal event so slow clients can still observe it.
const GracePeriod = 5 * time.Second

// IdleExpiry auto-drops an id's subscriber set after this long without any
// publish activity.
const IdleExpiry = time.Hour

// Event is a tagged variant delivered to subscribers.
type Event struct {
	Type    EventType
	ID      string
	Percent int
	Message string
	File    string
	Payload interface{}
}

type subscriber struct {
	ch chan Event
}

type idEntry struct {
	subscribers map[*subscriber]struct{}
	lastActive  time.Time
	terminal    bool
}

// Broker multiplexes events to subscribers keyed by OptimizationId.
type Broker struct {
	mu  sync.Mutex
	ids map[string]*idEntry
}

// New returns an empty Broker and starts its idle-expiry sweeper.
func New() *Broker {
	b := &Broker{ids: make(map[string]*idEntry)}
	go b.expireIdleLoop()
	return b
}

// Subscribe returns a channel receiving every event published for id from
// this point forward. The caller must drain the channel until it closes.
func (b *Broker) Subscribe(id string) (<-chan Event, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.ids[id]
	if !ok {
		entry = &idEntry{subscribers: make(map[*subscriber]struct{}), lastActive: time.Now()}
		b.ids[id] = entry
	}

	sub := &subscriber{ch: make(chan Event, 16)}
	entry.subscribers[sub] = struct{}{}
	entry.lastActive = time.Now()

	return sub.ch, nil
}

// Publish delivers event to every current subscriber of event.ID. Terminal
// events (Complete/Error) schedule the id's teardown after GracePeriod.
func (b *Broker) Publish(event Event) {
	b.mu.Lock()
	entry, ok := b.ids[event.ID]
	if !ok {
		b.mu.Unlock()
		return
	}
	entry.lastActive = time.Now()
	terminal := event.Type == EventComplete || event.Type == EventError
	subs := make([]*subscriber, 0, len(entry.subscribers))
	for s := range entry.subscribers {
		subs = append(subs, s)
	}
	alreadyTerminal := entry.terminal
	if terminal {
		entry.terminal = true
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- event:
		default:
			// slow subscriber, drop rather than block the publisher
		}
	}

	if terminal && !alreadyTerminal {
		go b.closeAfterGrace(event.ID)
	}
}

func (b *Broker) closeAfterGrace(id string) {
	time.Sleep(GracePeriod)
	b.mu.Lock()
	entry, ok := b.ids[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.ids, id)
	b.mu.Unlock()

	for s := range entry.subscribers {
		close(s.ch)
	}
}

func (b *Broker) expireIdleLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		b.expireIdle()
	}
}

func (b *Broker) expireIdle() {
	now := time.Now()
	b.mu.Lock()
	var stale []string
	for id, entry := range b.ids {
		if now.Sub(entry.lastActive) > IdleExpiry {
			stale = append(stale, id)
		}
	}
	entries := make(map[string]*idEntry, len(stale))
	for _, id := range stale {
		entries[id] = b.ids[id]
		delete(b.ids, id)
	}
	b.mu.Unlock()

	for _, entry := range entries {
		for s := range entry.subscribers {
			close(s.ch)
		}
	}
}

// Unsubscribe is unused by the HTTP surface directly (client disconnects
// are observed via request context cancellation) and has no caller in this
// repository; it is kept for completeness of the broker's surface area.
func (b *Broker) Unsubscribe(id string, ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.ids[id]
	if !ok {
		return
	}
	for s := range entry.subscribers {
		if (<-chan Event)(s.ch) == ch {
			delete(entry.subscribers, s)
			return
		}
	}
}
