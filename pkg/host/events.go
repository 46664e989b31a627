package host

import (
	"sync"
	"time"
)

// EventKind discriminates interaction events.
type EventKind int

const (
	EventPointerMove EventKind = iota
	EventPointerDown
	EventKeyDown
	EventKeyUp
	EventTouchStart
	EventTouchMove
	EventTouchEnd
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventPointerMove:
		return "pointer_move"
	case EventPointerDown:
		return "pointer_down"
	case EventKeyDown:
		return "key_down"
	case EventKeyUp:
		return "key_up"
	case EventTouchStart:
		return "touch_start"
	case EventTouchMove:
		return "touch_move"
	case EventTouchEnd:
		return "touch_end"
	default:
		return "unknown"
	}
}

// Event is a single interaction event. Fields are populated per kind:
// pointer and touch events carry coordinates, touch events a contact size,
// key events the literal key value and its layout-normalized code.
type Event struct {
	Kind EventKind `json:"kind"`
	Time time.Time `json:"time"`
	X    float64   `json:"x,omitempty"`
	Y    float64   `json:"y,omitempty"`
	Size float64   `json:"size,omitempty"`
	Key  string    `json:"key,omitempty"`
	Code string    `json:"code,omitempty"`
}

// EventSource delivers interaction events to subscribers.
type EventSource interface {
	// Subscribe returns a channel of events restricted to the given kinds
	// (all kinds when none are given) and a cancel function. Cancel
	// closes the channel and detaches the subscriber.
	Subscribe(kinds ...EventKind) (<-chan Event, func())
}

// Bus is an in-process EventSource with fan-out delivery. It backs the
// synthetic environment and can be embedded by platform adapters.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*busSub
}

type busSub struct {
	kinds map[EventKind]bool // nil means all
	ch    chan Event
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*busSub)}
}

// Subscribe implements EventSource.
func (b *Bus) Subscribe(kinds ...EventKind) (<-chan Event, func()) {
	sub := &busSub{ch: make(chan Event, 256)}
	if len(kinds) > 0 {
		sub.kinds = make(map[EventKind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers an event to all matching subscribers. Delivery is
// best-effort: a subscriber with a full buffer drops the event rather than
// blocking the publisher.
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.kinds != nil && !sub.kinds[ev.Kind] {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// SubscriberCount reports the number of attached subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
