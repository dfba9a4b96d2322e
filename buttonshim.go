// Package buttonshim drives the Pimoroni Button SHIM: five momentary
// buttons and one RGB LED behind a single I2C GPIO expander.
//
// The LED and the buttons share one serialized bus handle, so colour
// updates may be issued from any goroutine, including from a button event
// handler, while the sampler is running.
package buttonshim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/coreman2200/funtimes-buttonshim/bus"
	"github.com/coreman2200/funtimes-buttonshim/buttons"
	"github.com/coreman2200/funtimes-buttonshim/led"
)

// DefaultAddr is the shim's 7-bit I2C address.
const DefaultAddr uint16 = 0x3F

const (
	// inputMask configures the five button pins as inputs and the LED
	// clock/data pins as outputs.
	inputMask byte = 0b00011111
)

// ErrClosed is returned by operations on a closed Shim.
var ErrClosed = errors.New("buttonshim: closed")

// Opts configures a Shim. The zero value is usable.
type Opts struct {
	// Addr defaults to DefaultAddr.
	Addr uint16
	// HoldThreshold defaults to two seconds.
	HoldThreshold time.Duration
	// FailureLimit is passed to the button sampler.
	FailureLimit int
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

// Shim composes the LED and the buttons over one bus handle.
type Shim struct {
	LED     *led.LED
	Buttons *buttons.Buttons

	h      *bus.Handle
	dev    *i2c.Dev
	closer i2c.BusCloser

	mu     sync.Mutex
	closed bool
}

// New brings the expander up on b and returns a ready Shim. The LED is
// left off.
func New(b i2c.Bus, opts *Opts) (*Shim, error) {
	if opts == nil {
		opts = &Opts{}
	}
	addr := opts.Addr
	if addr == 0 {
		addr = DefaultAddr
	}
	dev := &i2c.Dev{Bus: b, Addr: addr}
	h := bus.New(dev)

	if err := bringUp(h); err != nil {
		return nil, wrap(err)
	}

	return &Shim{
		LED: led.New(h),
		Buttons: buttons.New(h, &buttons.Opts{
			HoldThreshold: opts.HoldThreshold,
			FailureLimit:  opts.FailureLimit,
			Logger:        opts.Logger,
		}),
		h:   h,
		dev: dev,
	}, nil
}

// Open initializes the host drivers, opens the named I2C bus ("" picks the
// first available one) and calls New. Close releases the bus.
func Open(name string, opts *Opts) (*Shim, error) {
	if _, err := host.Init(); err != nil {
		return nil, wrap(err)
	}
	bc, err := i2creg.Open(name)
	if err != nil {
		return nil, wrap(err)
	}
	s, err := New(bc, opts)
	if err != nil {
		_ = bc.Close()
		return nil, err
	}
	s.closer = bc
	return s, nil
}

func bringUp(h *bus.Handle) error {
	return h.Do(func(tx bus.Tx) error {
		if err := tx.WriteRegister(bus.RegConfig, inputMask); err != nil {
			return err
		}
		if err := tx.WriteRegister(bus.RegPolarity, 0x00); err != nil {
			return err
		}
		return tx.WriteRegister(bus.RegOutput, 0x00)
	})
}

// SetPixel sets the LED colour.
func (s *Shim) SetPixel(r, g, b byte) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.LED.SetColor(r, g, b)
}

// Halt turns the LED off.
func (s *Shim) Halt() error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.LED.Off()
}

// Close turns the LED off, releases button subscribers and closes the bus
// if it was opened by Open. Stopping a running sampler is the caller's job.
func (s *Shim) Close() error {
	if !s.markClosed() {
		return ErrClosed
	}
	err := s.LED.Off()
	if rerr := s.release(); err == nil {
		err = rerr
	}
	return wrap(err)
}

// Detach is Close without turning the LED off, so the pixel keeps its
// last colour after the process exits.
func (s *Shim) Detach() error {
	if !s.markClosed() {
		return ErrClosed
	}
	return wrap(s.release())
}

func (s *Shim) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}

func (s *Shim) release() error {
	s.Buttons.Close()
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func (s *Shim) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Shim) String() string {
	return fmt.Sprintf("buttonshim{%s}", s.dev)
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("buttonshim: %w", err)
}
