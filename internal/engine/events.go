package engine

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Event types published for an object.
const (
	EventCreated      = "created"
	EventInvoked      = "invoked"
	EventReleased     = "released"
	EventDisconnected = "disconnected"
	EventFailed       = "failed"
)

const (
	// subscriberBufferSize is the channel buffer of each subscriber. Events
	// are dropped for a subscriber this far behind.
	subscriberBufferSize = 64

	// replaySize is how many recent events of a live object a new subscriber
	// receives first. It must not exceed subscriberBufferSize.
	replaySize = 16
)

var eventsDropped = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "apartment",
		Subsystem: "engine",
		Name:      "events_dropped_total",
		Help:      "Object events not delivered to a subscriber that fell behind.",
	},
)

func init() {
	prometheus.MustRegister(eventsDropped)
}

// Event is one lifecycle change or invocation of a hosted object.
type Event struct {
	Type     string    `json:"type"`
	ObjectID string    `json:"object_id"`
	Op       string    `json:"op,omitempty"`
	Seq      int       `json:"seq,omitempty"`
	Error    string    `json:"error,omitempty"`
	Time     time.Time `json:"time"`
}

// EventBroker fans out each object's events to its subscribers. A subscriber
// joining a live object first receives the object's recent events, so a
// stream opened after Create still starts with the created event. Once an
// object is finished its stream is closed for good: its history is dropped
// and later subscribers get a closed channel.
type EventBroker struct {
	mu      sync.Mutex
	streams map[string]*objectStream
}

type objectStream struct {
	recent   []Event
	subs     map[chan Event]struct{}
	finished bool
}

// NewEventBroker creates an empty broker.
func NewEventBroker() *EventBroker {
	return &EventBroker{streams: make(map[string]*objectStream)}
}

// stream returns the object's stream, creating it. b.mu must be held.
func (b *EventBroker) stream(objectID string) *objectStream {
	st, ok := b.streams[objectID]
	if !ok {
		st = &objectStream{subs: make(map[chan Event]struct{})}
		b.streams[objectID] = st
	}
	return st
}

// Subscribe returns a channel of the object's events, starting with its recent
// history, and a function that cancels the subscription. The channel is
// closed when the object finishes.
func (b *EventBroker) Subscribe(objectID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.stream(objectID)
	ch := make(chan Event, subscriberBufferSize)
	if st.finished {
		close(ch)
		return ch, func() {}
	}
	for _, ev := range st.recent {
		ch <- ev
	}
	st.subs[ch] = struct{}{}

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(st.subs, ch)
	}
}

// Publish records ev in its object's history and delivers it to every
// subscriber with room for it. Events of finished objects are discarded.
func (b *EventBroker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.stream(ev.ObjectID)
	if st.finished {
		return
	}

	if len(st.recent) == replaySize {
		copy(st.recent, st.recent[1:])
		st.recent[replaySize-1] = ev
	} else {
		st.recent = append(st.recent, ev)
	}

	for ch := range st.subs {
		select {
		case ch <- ev:
		default:
			eventsDropped.Inc()
		}
	}
}

// Close finishes the object's stream and closes every subscriber channel.
func (b *EventBroker) Close(objectID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.stream(objectID)
	if st.finished {
		return
	}
	st.finished = true
	st.recent = nil
	for ch := range st.subs {
		close(ch)
		delete(st.subs, ch)
	}
}
