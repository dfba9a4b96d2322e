// Package simbus is an in-memory stand-in for the Button SHIM on an I2C
// bus. It keeps the expander's register file, lets callers press buttons
// and decodes the bit-banged LED frames written to the output register.
package simbus

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/funtimes-buttonshim/bus"
	"github.com/coreman2200/funtimes-buttonshim/led"
	"github.com/coreman2200/funtimes-buttonshim/model"
)

const (
	dataMask  = 1 << 7
	clockMask = 1 << 6
)

// Bus implements i2c.BusCloser.
type Bus struct {
	mu     sync.Mutex
	addr   uint16
	regs   [4]byte
	rgb    [3]byte
	frames int
	txs    int
	err    error
	speed  physic.Frequency
	closed bool
}

var _ i2c.BusCloser = (*Bus)(nil)

// New returns a simulated shim answering at addr with every button released.
func New(addr uint16) *Bus {
	b := &Bus{addr: addr}
	b.regs[bus.RegInput] = 0x1f
	return b
}

func (b *Bus) String() string {
	return fmt.Sprintf("simbus@0x%02x", b.addr)
}

func (b *Bus) SetSpeed(f physic.Frequency) error {
	b.mu.Lock()
	b.speed = f
	b.mu.Unlock()
	return nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("simbus: already closed")
	}
	b.closed = true
	return nil
}

// Tx implements i2c.Bus.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.txs++

	switch {
	case b.closed:
		return fmt.Errorf("simbus: closed")
	case b.err != nil:
		return b.err
	case addr != b.addr:
		return fmt.Errorf("simbus: no device at 0x%02x", addr)
	case len(w) == 0:
		return fmt.Errorf("simbus: missing register address")
	}
	reg := w[0]
	if int(reg) >= len(b.regs) {
		return fmt.Errorf("simbus: no register 0x%02x", reg)
	}
	for i := range r {
		r[i] = b.regs[reg]
	}
	if len(w) > 1 {
		if reg == bus.RegInput {
			return fmt.Errorf("simbus: input register is read-only")
		}
		// The expander does not auto-increment, so every byte lands in reg.
		if reg == bus.RegOutput {
			b.decode(w[1:])
		}
		b.regs[reg] = w[len(w)-1]
	}
	return nil
}

// decode samples the data line on every rising clock edge and, when the
// bytes form a complete pixel frame, latches its colour.
func (b *Bus) decode(out []byte) {
	var stream []byte
	var cur byte
	bits := 0
	prev := b.regs[bus.RegOutput]
	for _, v := range out {
		if prev&clockMask == 0 && v&clockMask != 0 {
			cur <<= 1
			if v&dataMask != 0 {
				cur |= 1
			}
			if bits++; bits == 8 {
				stream = append(stream, cur)
				cur, bits = 0, 0
			}
		}
		prev = v
	}
	if validFrame(stream) {
		b.rgb = [3]byte{stream[5], stream[4], stream[3]}
		b.frames++
	}
}

func validFrame(s []byte) bool {
	return len(s) == 8 &&
		s[0] == 0 && s[1] == 0 &&
		s[2] == led.FRAME_BRIGHTNESS &&
		s[6] == 0 && s[7] == 0
}

// SetInput replaces the raw input register (active low).
func (b *Bus) SetInput(v byte) {
	b.mu.Lock()
	b.regs[bus.RegInput] = v
	b.mu.Unlock()
}

func (b *Bus) Press(ch model.Channel) {
	b.mu.Lock()
	b.regs[bus.RegInput] &^= 1 << ch
	b.mu.Unlock()
}

func (b *Bus) Release(ch model.Channel) {
	b.mu.Lock()
	b.regs[bus.RegInput] |= 1 << ch
	b.mu.Unlock()
}

// Fail makes every following transaction return err; nil restores the bus.
func (b *Bus) Fail(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

func (b *Bus) Register(reg byte) byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.regs[reg]
}

// Color is the colour of the last complete LED frame.
func (b *Bus) Color() (r, g, bl byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rgb[0], b.rgb[1], b.rgb[2]
}

// Frames counts complete LED frames received.
func (b *Bus) Frames() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames
}

// Transactions counts every Tx call, failed ones included.
func (b *Bus) Transactions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.txs
}
