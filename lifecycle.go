package relay

import (
	"sync"
	"time"
)

// EventKind names a point in a request's lifecycle.
type EventKind int

const (
	// EventBeforeDispatch fires just before the request is handed to the
	// transport. Observers may still edit Event.Request.
	EventBeforeDispatch EventKind = iota + 1
	// EventDispatched fires after the in-flight counter was incremented.
	EventDispatched
	// EventSucceeded fires on a 2xx response whose transforms all passed.
	EventSucceeded
	// EventFailed fires on transport, status or transform failure.
	EventFailed
	// EventCancelled fires when a call is cancelled before it settled.
	EventCancelled
	// EventDrained fires when the in-flight counter returns to zero.
	EventDrained
)

func (k EventKind) String() string {
	switch k {
	case EventBeforeDispatch:
		return "before_dispatch"
	case EventDispatched:
		return "dispatched"
	case EventSucceeded:
		return "succeeded"
	case EventFailed:
		return "failed"
	case EventCancelled:
		return "cancelled"
	case EventDrained:
		return "drained"
	default:
		return "unknown"
	}
}

// Terminal reports whether k settles a call.
func (k EventKind) Terminal() bool {
	return k == EventSucceeded || k == EventFailed || k == EventCancelled
}

// Event is delivered to observers. Drained events carry no request.
type Event struct {
	Kind       EventKind
	Descriptor *Descriptor
	Request    *Request
	Response   *Response
	Err        error
	InFlight   int
	Duration   time.Duration
	Time       time.Time
}

// Observer receives lifecycle events. Calls happen synchronously on the
// goroutine that caused the event, outside the tracker's locks.
//
// Events of one call arrive in order. Across concurrent calls there is no
// total order: a drained event may reach an observer after the dispatched
// event of a call that started later. Event.InFlight is the counter value
// at the transition and stays accurate regardless of delivery order.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

type subscription struct {
	id       uint64
	observer Observer
	mask     uint32
}

// tracker owns the in-flight counter and the observer list of one client.
type tracker struct {
	mu       sync.Mutex
	inFlight int
	nextID   uint64
	subs     []subscription
}

func newTracker() *tracker {
	return &tracker{}
}

// subscribe registers obs for kinds, or for every kind when none are given.
func (t *tracker) subscribe(obs Observer, kinds ...EventKind) func() {
	var mask uint32
	for _, k := range kinds {
		mask |= 1 << uint(k)
	}
	if mask == 0 {
		mask = ^uint32(0)
	}

	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.subs = append(t.subs, subscription{id: id, observer: obs, mask: mask})
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			for i, s := range t.subs {
				if s.id == id {
					t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// count returns the current in-flight counter.
func (t *tracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight
}

// emit delivers e to matching observers.
func (t *tracker) emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	t.mu.Lock()
	if e.Kind == EventBeforeDispatch {
		e.InFlight = t.inFlight
	}
	subs := make([]subscription, len(t.subs))
	copy(subs, t.subs)
	t.mu.Unlock()

	bit := uint32(1) << uint(e.Kind)
	for _, s := range subs {
		if s.mask&bit != 0 {
			s.observer.OnEvent(e)
		}
	}
}

// begin increments the counter and emits dispatched.
func (t *tracker) begin(e Event) {
	t.mu.Lock()
	t.inFlight++
	e.InFlight = t.inFlight
	t.mu.Unlock()

	e.Kind = EventDispatched
	t.emit(e)
}

// finish decrements the counter, emits the terminal event and, when the
// counter reached zero on this transition, a drained event.
func (t *tracker) finish(e Event) {
	t.mu.Lock()
	if t.inFlight > 0 {
		t.inFlight--
	}
	e.InFlight = t.inFlight
	drained := t.inFlight == 0
	t.mu.Unlock()

	t.emit(e)
	if drained {
		t.emit(Event{Kind: EventDrained})
	}
}
