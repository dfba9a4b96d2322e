package model

import (
	"fmt"
	"time"
)

// NumChannels is the number of buttons on the shim.
const NumChannels = 5

// DefaultHoldThreshold separates a click from a hold.
const DefaultHoldThreshold = 2 * time.Second

// Channel identifies one of the five buttons.
type Channel uint8

const (
	A Channel = iota
	B
	C
	D
	E
)

// Channels lists every button in dispatch order.
var Channels = [NumChannels]Channel{A, B, C, D, E}

func (c Channel) Valid() bool {
	return c < NumChannels
}

func (c Channel) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Channel(%d)", uint8(c))
	}
	return string(rune('A' + c))
}

// ParseChannel accepts "A".."E" in either case.
func ParseChannel(s string) (Channel, error) {
	if len(s) == 1 {
		r := s[0] | 0x20
		if r >= 'a' && r <= 'e' {
			return Channel(r - 'a'), nil
		}
	}
	return 0, fmt.Errorf("model: unknown channel %q", s)
}

// Kind tags the variant held by a State.
type Kind uint8

const (
	Released Kind = iota
	Pressed
	Hold
	Clicked
)

var kindNames = [...]string{"released", "pressed", "hold", "clicked"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// State is the debounced state of one channel. Since is only set for
// Pressed and holds the moment the press began.
type State struct {
	Kind  Kind
	Since time.Time
}

func PressedAt(t time.Time) State {
	return State{Kind: Pressed, Since: t}
}

// Equal compares kinds and, for Pressed, the press timestamps.
func (s State) Equal(o State) bool {
	if s.Kind != o.Kind {
		return false
	}
	if s.Kind == Pressed {
		return s.Since.Equal(o.Since)
	}
	return true
}

func (s State) String() string {
	if s.Kind == Pressed {
		return fmt.Sprintf("pressed(%s)", s.Since.Format(time.StampMilli))
	}
	return s.Kind.String()
}

// Transition advances one channel by a single sample.
//
// A press is promoted to Hold only once the elapsed time is strictly
// greater than threshold. A release counts as a click only when the
// elapsed time is strictly less than threshold, so releasing at exactly
// the threshold yields Released.
func Transition(s State, pressed bool, now time.Time, threshold time.Duration) State {
	if pressed {
		switch s.Kind {
		case Pressed:
			if now.Sub(s.Since) > threshold {
				return State{Kind: Hold}
			}
			return s
		case Hold:
			return State{Kind: Hold}
		default:
			return PressedAt(now)
		}
	}
	if s.Kind == Pressed && now.Sub(s.Since) < threshold {
		return State{Kind: Clicked}
	}
	return State{Kind: Released}
}

// Event reports that a channel moved into State.
type Event struct {
	Channel Channel
	State   State
}

func (e Event) String() string {
	return e.Channel.String() + " -> " + e.State.Kind.String()
}
