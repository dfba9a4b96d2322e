package buttons

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-buttonshim/bus"
	"github.com/coreman2200/funtimes-buttonshim/model"
)

const allReleased = 0x1f

// input is a Reader whose register value can be changed by the test.
type input struct {
	v     atomic.Uint32
	err   atomic.Value
	reads atomic.Int64
}

func newInput(v byte) *input {
	in := &input{}
	in.v.Store(uint32(v))
	return in
}

func (in *input) set(v byte) { in.v.Store(uint32(v)) }

func (in *input) fail(err error) { in.err.Store(&err) }

func (in *input) ReadRegister(reg byte) (byte, error) {
	in.reads.Add(1)
	if p, ok := in.err.Load().(*error); ok && *p != nil {
		return 0, &bus.TransportError{Op: "read", Reg: reg, Err: *p}
	}
	return byte(in.v.Load()), nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestButtons(in Reader, threshold time.Duration) (*Buttons, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	nop := zerolog.Nop()
	return New(in, &Opts{HoldThreshold: threshold, Clock: clk.Now, Logger: &nop}), clk
}

func TestDefaults(t *testing.T) {
	b := New(newInput(allReleased), nil)
	assert.Equal(t, model.DefaultHoldThreshold, b.HoldThreshold())
	for _, ch := range model.Channels {
		assert.Equal(t, model.Released, b.Current(ch).Kind)
	}
	b.SetHoldThreshold(time.Second)
	assert.Equal(t, time.Second, b.HoldThreshold())
}

func TestPressAFromReleased(t *testing.T) {
	in := newInput(0b11110)
	b, clk := newTestButtons(in, 2*time.Second)

	events, err := b.SampleOnce()
	require.NoError(t, err)

	want := States{model.PressedAt(clk.Now())}
	got := b.Snapshot()
	for _, ch := range model.Channels {
		assert.True(t, want[ch].Equal(got[ch]), "channel %s: %s", ch, got[ch])
	}
	require.Len(t, events, 1)
	assert.Equal(t, model.A, events[0].Channel)
	assert.Equal(t, model.Pressed, events[0].State.Kind)
	assert.Equal(t, model.Pressed, b.A().Kind)
	assert.Equal(t, model.Released, b.B().Kind)
}

func TestShortPressClicksOnce(t *testing.T) {
	in := newInput(0b11110)
	b, clk := newTestButtons(in, 100*time.Millisecond)

	_, err := b.SampleOnce()
	require.NoError(t, err)

	clk.Advance(99 * time.Millisecond)
	in.set(allReleased)
	events, err := b.SampleOnce()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.Clicked, events[0].State.Kind)
	assert.Equal(t, model.Clicked, b.Current(model.A).Kind)

	clk.Advance(10 * time.Millisecond)
	events, err = b.SampleOnce()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.Released, events[0].State.Kind)

	// Steady state emits nothing.
	events, err = b.SampleOnce()
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestLongPressHolds(t *testing.T) {
	in := newInput(0b01111)
	b, clk := newTestButtons(in, 100*time.Millisecond)

	_, err := b.SampleOnce()
	require.NoError(t, err)

	clk.Advance(100 * time.Millisecond)
	events, err := b.SampleOnce()
	require.NoError(t, err)
	assert.Empty(t, events, "equal to threshold is not yet a hold")

	clk.Advance(time.Millisecond)
	events, err = b.SampleOnce()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.Event{Channel: model.E, State: model.State{Kind: model.Hold}}, events[0])

	clk.Advance(time.Minute)
	events, err = b.SampleOnce()
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, model.Hold, b.E().Kind)

	in.set(allReleased)
	events, err = b.SampleOnce()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.Released, events[0].State.Kind)
}

func TestSimultaneousChangesInChannelOrder(t *testing.T) {
	in := newInput(0b11110)
	b, clk := newTestButtons(in, 2*time.Second)
	sub := b.Subscribe(8)
	defer sub.Close()

	_, err := b.SampleOnce()
	require.NoError(t, err)
	<-sub.C

	// A releases, B and D press.
	clk.Advance(10 * time.Millisecond)
	in.set(0b10101)
	events, err := b.SampleOnce()
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, []model.Channel{model.A, model.B, model.D},
		[]model.Channel{events[0].Channel, events[1].Channel, events[2].Channel})
	assert.Equal(t, model.Clicked, events[0].State.Kind)

	for _, want := range events {
		got := <-sub.C
		assert.Equal(t, want.Channel, got.Channel)
		assert.True(t, want.State.Equal(got.State))
	}
}

func TestUnusedBitsIgnored(t *testing.T) {
	in := newInput(0b00011111)
	b, _ := newTestButtons(in, time.Second)
	events, err := b.SampleOnce()
	require.NoError(t, err)
	assert.Empty(t, events)

	in.set(0b11111111)
	events, err = b.SampleOnce()
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestTransportErrorKeepsState(t *testing.T) {
	in := newInput(0b11100)
	b, clk := newTestButtons(in, time.Second)
	sub := b.Subscribe(8)

	_, err := b.SampleOnce()
	require.NoError(t, err)
	before := b.Snapshot()
	assert.Equal(t, 2, len(sub.C))

	in.fail(errors.New("timeout"))
	clk.Advance(5 * time.Second)
	events, err := b.SampleOnce()
	var te *bus.TransportError
	require.True(t, errors.As(err, &te))
	assert.Nil(t, events)
	assert.Equal(t, before, b.Snapshot())
	assert.Equal(t, 2, len(sub.C))
}

func TestSubscriberFanOutAndDrops(t *testing.T) {
	in := newInput(0b11100)
	b, _ := newTestButtons(in, time.Second)
	small := b.Subscribe(1)
	big := b.Subscribe(0)

	_, err := b.SampleOnce()
	require.NoError(t, err)

	assert.Equal(t, uint64(1), small.Sent())
	assert.Equal(t, uint64(1), small.Dropped())
	assert.Equal(t, uint64(2), big.Sent())
	assert.Equal(t, uint64(0), big.Dropped())
	assert.Equal(t, model.A, (<-small.C).Channel)

	small.Close()
	small.Close()
	_, open := <-small.C
	assert.False(t, open)
	assert.Equal(t, 1, b.events.count())

	b.Close()
	<-big.C
	<-big.C
	_, open = <-big.C
	assert.False(t, open)
}

func waitEvent(t *testing.T, sub *Subscription) model.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return model.Event{}
}

func TestBackgroundLoop(t *testing.T) {
	in := newInput(allReleased)
	b, _ := newTestButtons(in, time.Second)
	sub := b.Subscribe(16)

	r := b.Start(context.Background(), time.Millisecond)

	in.set(0b11101)
	ev := waitEvent(t, sub)
	assert.Equal(t, model.Event{Channel: model.B, State: ev.State}, ev)
	assert.Equal(t, model.Pressed, ev.State.Kind)

	// The fake clock never moves, so the release is a click.
	in.set(allReleased)
	assert.Equal(t, model.Clicked, waitEvent(t, sub).State.Kind)
	assert.Equal(t, model.Released, waitEvent(t, sub).State.Kind)

	require.NoError(t, r.Stop())
	select {
	case <-r.Done():
	default:
		t.Fatal("runner not done after Stop")
	}

	reads := in.reads.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, reads, in.reads.Load(), "no samples after Stop")
}

func TestBackgroundLoopStopsOnContext(t *testing.T) {
	b, _ := newTestButtons(newInput(allReleased), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	r := b.Start(ctx, 0)
	cancel()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("runner ignored context cancellation")
	}
	assert.NoError(t, r.Err())
}

func TestBackgroundLoopFailureLimit(t *testing.T) {
	in := newInput(allReleased)
	in.fail(errors.New("nack"))
	nop := zerolog.Nop()
	b := New(in, &Opts{FailureLimit: 3, Logger: &nop})

	r := b.Start(context.Background(), time.Millisecond)
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("runner kept going past the failure limit")
	}
	var te *bus.TransportError
	require.True(t, errors.As(r.Err(), &te))
	assert.Equal(t, int64(3), in.reads.Load())
	assert.Equal(t, uint64(3), r.Failures())
	assert.Error(t, r.Stop())
}

func TestBackgroundLoopReportsFailuresWithoutLimit(t *testing.T) {
	in := newInput(allReleased)
	b, _ := newTestButtons(in, time.Second)
	r := b.Start(context.Background(), time.Millisecond)
	defer r.Stop()

	assert.Zero(t, r.Failures())
	assert.NoError(t, r.LastError())

	in.fail(errors.New("nack"))
	require.Eventually(t, func() bool { return r.Failures() >= 2 }, 2*time.Second, time.Millisecond)
	var te *bus.TransportError
	require.True(t, errors.As(r.LastError(), &te))
	assert.Equal(t, bus.RegInput, te.Reg)

	// Still sampling: the loop only reports.
	in.fail(nil)
	in.set(0b11110)
	require.Eventually(t, func() bool { return b.A().Kind == model.Pressed }, 2*time.Second, time.Millisecond)
	assert.NoError(t, r.Err())
	assert.NoError(t, r.Stop())
}

func TestConcurrentReadersSeeWholeArrays(t *testing.T) {
	in := newInput(allReleased)
	b, clk := newTestButtons(in, time.Hour)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s := b.Snapshot()
				// All channels flip together, so a torn read would mix kinds.
				for _, ch := range model.Channels[1:] {
					if s[ch].Kind != s[0].Kind {
						t.Errorf("torn snapshot: %v", s)
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			in.set(0x00)
		} else {
			in.set(allReleased)
		}
		clk.Advance(time.Millisecond)
		_, err := b.SampleOnce()
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}
