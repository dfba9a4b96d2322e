package buttons

import (
	"time"

	"github.com/coreman2200/funtimes-buttonshim/model"
)

// States holds one debounced state per channel, indexed by model.Channel.
type States [model.NumChannels]model.State

// Pressed reports whether channel ch is down in the raw input byte.
// Inputs are active low and bits 5-7 are ignored.
func Pressed(raw byte, ch model.Channel) bool {
	return raw&(1<<ch) == 0
}

// Advance applies one raw sample to every channel and returns a new array.
// prev is never modified.
func Advance(prev States, raw byte, now time.Time, threshold time.Duration) States {
	var next States
	for _, ch := range model.Channels {
		next[ch] = model.Transition(prev[ch], Pressed(raw, ch), now, threshold)
	}
	return next
}

// Diff lists the channels whose state changed, in channel order.
func Diff(prev, next States) []model.Event {
	var events []model.Event
	for _, ch := range model.Channels {
		if !prev[ch].Equal(next[ch]) {
			events = append(events, model.Event{Channel: ch, State: next[ch]})
		}
	}
	return events
}
