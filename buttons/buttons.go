// Package buttons samples the five SHIM buttons and turns raw input into
// debounced states and transition events.
package buttons

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-buttonshim/bus"
	"github.com/coreman2200/funtimes-buttonshim/model"
)

// Reader is the part of the bus the sampler needs.
type Reader interface {
	ReadRegister(reg byte) (byte, error)
}

// Opts configures a Buttons instance. The zero value is usable.
type Opts struct {
	// HoldThreshold defaults to model.DefaultHoldThreshold.
	HoldThreshold time.Duration
	// FailureLimit stops the background loop after that many consecutive
	// failed samples. Zero keeps it running.
	FailureLimit int
	// Clock defaults to time.Now.
	Clock func() time.Time
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

// Buttons owns the published button states. Samples are taken one at a
// time; readers always see a complete array.
type Buttons struct {
	r            Reader
	clock        func() time.Time
	failureLimit int
	log          zerolog.Logger

	sampleMu sync.Mutex

	mu        sync.RWMutex
	states    States
	threshold time.Duration

	events *dispatcher
}

func New(r Reader, opts *Opts) *Buttons {
	if opts == nil {
		opts = &Opts{}
	}
	b := &Buttons{
		r:            r,
		clock:        opts.Clock,
		failureLimit: opts.FailureLimit,
		threshold:    opts.HoldThreshold,
		events:       newDispatcher(),
	}
	if b.clock == nil {
		b.clock = time.Now
	}
	if b.threshold <= 0 {
		b.threshold = model.DefaultHoldThreshold
	}
	if opts.Logger != nil {
		b.log = opts.Logger.With().Str("component", "buttons").Logger()
	} else {
		b.log = log.With().Str("component", "buttons").Logger()
	}
	return b
}

func (b *Buttons) SetHoldThreshold(d time.Duration) {
	b.mu.Lock()
	b.threshold = d
	b.mu.Unlock()
}

func (b *Buttons) HoldThreshold() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.threshold
}

// Current returns the last published state of ch.
func (b *Buttons) Current(ch model.Channel) model.State {
	if !ch.Valid() {
		return model.State{}
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.states[ch]
}

func (b *Buttons) A() model.State { return b.Current(model.A) }
func (b *Buttons) B() model.State { return b.Current(model.B) }
func (b *Buttons) C() model.State { return b.Current(model.C) }
func (b *Buttons) D() model.State { return b.Current(model.D) }
func (b *Buttons) E() model.State { return b.Current(model.E) }

// Snapshot returns a copy of all five states.
func (b *Buttons) Snapshot() States {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.states
}

// Subscribe registers a new event receiver with room for buffer events.
func (b *Buttons) Subscribe(buffer int) *Subscription {
	return b.events.add(buffer)
}

// SampleOnce reads the input register, advances every channel, publishes
// the result and notifies subscribers. On a transport error nothing is
// published and the previous states remain.
func (b *Buttons) SampleOnce() ([]model.Event, error) {
	b.sampleMu.Lock()
	defer b.sampleMu.Unlock()

	raw, err := b.r.ReadRegister(bus.RegInput)
	if err != nil {
		return nil, err
	}
	now := b.clock()

	b.mu.RLock()
	prev, threshold := b.states, b.threshold
	b.mu.RUnlock()

	next := Advance(prev, raw, now, threshold)

	b.mu.Lock()
	b.states = next
	b.mu.Unlock()

	events := Diff(prev, next)
	for _, ev := range events {
		b.log.Debug().Stringer("channel", ev.Channel).Stringer("state", ev.State.Kind).Msg("transition")
	}
	b.events.publish(events)
	return events, nil
}

// Close releases every subscriber. Sampling after Close still works but
// has nobody to notify.
func (b *Buttons) Close() {
	b.events.closeAll()
}
