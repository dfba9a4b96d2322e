// Package bus serializes register access to the Button SHIM.
//
// A single Handle is shared by the LED and the button sampler. Every
// transaction, including the 130-byte LED frame, runs under the handle's
// lock so the bit-banged output never interleaves with a button read.
package bus

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3"
)

// Register map of the shim's TCA9554A-style expander.
const (
	RegInput    byte = 0x00
	RegOutput   byte = 0x01
	RegPolarity byte = 0x02
	RegConfig   byte = 0x03
)

// TransportError is returned when the underlying I2C transaction fails.
type TransportError struct {
	Op  string
	Reg byte
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("bus: %s reg 0x%02x: %v", e.Op, e.Reg, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Handle is the exclusive-access wrapper around the device connection.
type Handle struct {
	mu sync.Mutex
	c  conn.Conn
}

// New wraps c, which is normally an *i2c.Dev already addressed to the shim.
func New(c conn.Conn) *Handle {
	return &Handle{c: c}
}

func (h *Handle) String() string {
	return fmt.Sprintf("bus.Handle{%s}", h.c)
}

// ReadRegister performs a single-byte register read.
func (h *Handle) ReadRegister(reg byte) (byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Tx{h.c}.ReadRegister(reg)
}

// WriteRegister performs a single-byte register write.
func (h *Handle) WriteRegister(reg, v byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Tx{h.c}.WriteRegister(reg, v)
}

// Write sends b as one raw transaction. The first byte addresses the
// target register.
func (h *Handle) Write(b []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Tx{h.c}.Write(b)
}

// Do runs f with exclusive access to the connection, for callers that
// need several transactions without anything interleaving. The first
// error returned by tx ends the sequence if f returns it.
func (h *Handle) Do(f func(tx Tx) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return f(Tx{h.c})
}

// Tx is the connection as seen from inside Do. It must not escape f.
type Tx struct {
	c conn.Conn
}

func (t Tx) ReadRegister(reg byte) (byte, error) {
	var r [1]byte
	if err := t.c.Tx([]byte{reg}, r[:]); err != nil {
		return 0, &TransportError{Op: "read", Reg: reg, Err: err}
	}
	return r[0], nil
}

func (t Tx) WriteRegister(reg, v byte) error {
	if err := t.c.Tx([]byte{reg, v}, nil); err != nil {
		return &TransportError{Op: "write", Reg: reg, Err: err}
	}
	return nil
}

func (t Tx) Write(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if err := t.c.Tx(b, nil); err != nil {
		return &TransportError{Op: "write block", Reg: b[0], Err: err}
	}
	return nil
}
