package led

import "github.com/coreman2200/funtimes-buttonshim/bus"

const (
	DATA_BIT  uint8 = 7
	CLOCK_BIT uint8 = 6

	// FRAME_BRIGHTNESS is the fixed global-brightness header of the pixel.
	FRAME_BRIGHTNESS byte = 0xEF

	// FrameLen is the size of every encoded frame: a two byte register
	// preamble plus 8 protocol bytes at 16 output bytes each.
	FrameLen = 2 + 8*16
)

// Encoder bit-bangs an APA102-style clock/data frame onto the output
// register. The zero value is ready to use. An Encoder reuses its scratch
// buffer between calls and must not be shared between goroutines.
type Encoder struct {
	buf []byte
}

// Encode returns a fresh FrameLen byte frame setting the pixel to r, g, b.
func (e *Encoder) Encode(r, g, b byte) []byte {
	if cap(e.buf) < FrameLen {
		e.buf = make([]byte, 0, FrameLen)
	}
	e.buf = append(e.buf[:0], bus.RegOutput, 0x00)

	// start of frame, brightness, colour in B G R wire order, end of frame
	for _, v := range [...]byte{0x00, 0x00, FRAME_BRIGHTNESS, b, g, r, 0x00, 0x00} {
		e.writeByte(v)
	}

	out := make([]byte, len(e.buf))
	copy(out, e.buf)
	return out
}

// Encode is a convenience wrapper using a throwaway Encoder.
func Encode(r, g, b byte) []byte {
	var e Encoder
	return e.Encode(r, g, b)
}

// next appends a copy of the last emitted byte so untouched output bits
// keep their value.
func (e *Encoder) next() {
	if len(e.buf) == 0 {
		e.buf = append(e.buf, 0)
		return
	}
	e.buf = append(e.buf, e.buf[len(e.buf)-1])
}

func (e *Encoder) setBit(pin uint8, on bool) {
	last := len(e.buf) - 1
	if on {
		e.buf[last] |= 1 << pin
	} else {
		e.buf[last] &^= 1 << pin
	}
}

// writeByte clocks b out MSB first: data is set while the clock is low and
// latched on the following rising edge.
func (e *Encoder) writeByte(b byte) {
	for i := 0; i < 8; i++ {
		e.next()
		e.setBit(CLOCK_BIT, false)
		e.setBit(DATA_BIT, b&0x80 != 0)
		e.next()
		e.setBit(CLOCK_BIT, true)
		b <<= 1
	}
}
