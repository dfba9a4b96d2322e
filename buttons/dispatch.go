package buttons

import (
	"sync"
	"sync/atomic"

	"github.com/coreman2200/funtimes-buttonshim/model"
)

// DefaultBuffer is the per-subscriber queue length used when Subscribe is
// given a non-positive size.
const DefaultBuffer = 16

// Subscription receives button events. Events that do not fit in the
// buffer are dropped rather than stalling the sampler.
type Subscription struct {
	C <-chan model.Event

	ch      chan model.Event
	d       *dispatcher
	sent    atomic.Uint64
	dropped atomic.Uint64
	once    sync.Once
}

// Close unsubscribes and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.d.remove(s)
	})
}

// Sent is the number of events delivered to C.
func (s *Subscription) Sent() uint64 {
	return s.sent.Load()
}

// Dropped is the number of events discarded because C was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

type dispatcher struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func newDispatcher() *dispatcher {
	return &dispatcher{subs: make(map[*Subscription]struct{})}
}

func (d *dispatcher) add(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan model.Event, buffer)
	s := &Subscription{C: ch, ch: ch, d: d}

	d.mu.Lock()
	d.subs[s] = struct{}{}
	d.mu.Unlock()
	return s
}

func (d *dispatcher) remove(s *Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subs[s]; !ok {
		return
	}
	delete(d.subs, s)
	close(s.ch)
}

func (d *dispatcher) count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// publish delivers events in order to every subscriber without blocking.
func (d *dispatcher) publish(events []model.Event) {
	if len(events) == 0 {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for s := range d.subs {
		for _, ev := range events {
			select {
			case s.ch <- ev:
				s.sent.Add(1)
			default:
				s.dropped.Add(1)
			}
		}
	}
}

func (d *dispatcher) closeAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for s := range d.subs {
		delete(d.subs, s)
		close(s.ch)
	}
}
