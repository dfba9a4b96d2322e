// Package led drives the single RGB pixel on the Button SHIM.
package led

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-buttonshim/bus"
	"github.com/coreman2200/funtimes-buttonshim/model"
)

// LED writes colour frames through the shared bus handle.
type LED struct {
	mu      sync.Mutex
	h       *bus.Handle
	enc     Encoder
	r, g, b byte
	frame   []byte
	log     zerolog.Logger
}

func New(h *bus.Handle) *LED {
	return &LED{
		h:   h,
		log: log.With().Str("component", "led").Logger(),
	}
}

// SetColor encodes and sends a frame. The requested colour is kept as the
// LED's logical colour even when the write fails, since a partial frame
// may already have reached the pixel.
func (l *LED) SetColor(r, g, b byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.r, l.g, l.b = r, g, b
	l.frame = l.enc.Encode(r, g, b)
	if err := l.h.Write(l.frame); err != nil {
		l.log.Warn().Err(err).Msg("frame write failed")
		return err
	}
	l.log.Debug().Uint8("r", r).Uint8("g", g).Uint8("b", b).Msg("color set")
	return nil
}

// SetPixel sends c with its alpha applied.
func (l *LED) SetPixel(c model.ColorVal) error {
	r, g, b := c.ToRGB()
	return l.SetColor(r, g, b)
}

func (l *LED) Off() error {
	return l.SetColor(0, 0, 0)
}

// Apply re-sends the last frame. It is a no-op before the first SetColor.
func (l *LED) Apply() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frame == nil {
		return nil
	}
	return l.h.Write(l.frame)
}

// Color returns the last requested colour.
func (l *LED) Color() (r, g, b byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r, l.g, l.b
}

// Halt turns the pixel off.
func (l *LED) Halt() error {
	return l.Off()
}

func (l *LED) String() string {
	return "led{" + l.h.String() + "}"
}
