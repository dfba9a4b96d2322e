package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	ALPHA_OFFSET uint8 = 0x18
	RED_OFFSET   uint8 = 0x10
	GREEN_OFFSET uint8 = 0x08
	BLUE_OFFSET  uint8 = 0x0
)

// ColorVal is a packed 0xAARRGGBB colour. Alpha scales the RGB channels
// when the colour is sent to the LED.
type ColorVal struct {
	val uint32
}

func NewColor(c uint32) ColorVal {
	return ColorVal{val: c}
}

// RGB returns an opaque colour.
func RGB(r, g, b uint8) ColorVal {
	c := NewColor(0)
	c.SetA(0xFF)
	c.SetR(r)
	c.SetG(g)
	c.SetB(b)
	return c
}

// ParseColor accepts "#rrggbb", "rrggbb", "0xrrggbb" or the 8-digit forms
// carrying alpha. Six-digit values are opaque.
func ParseColor(s string) (ColorVal, error) {
	h := strings.TrimSpace(strings.ToLower(s))
	h = strings.TrimPrefix(h, "#")
	h = strings.TrimPrefix(h, "0x")
	if len(h) != 6 && len(h) != 8 {
		return ColorVal{}, fmt.Errorf("model: invalid color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return ColorVal{}, fmt.Errorf("model: invalid color %q: %w", s, err)
	}
	if len(h) == 6 {
		v |= 0xFF << ALPHA_OFFSET
	}
	return NewColor(uint32(v)), nil
}

func (c ColorVal) Color() uint32 {
	return c.val
}

// ToRGB applies alpha to the colour channels.
func (c ColorVal) ToRGB() (r, g, b uint8) {
	a := uint32(c.GetA())
	scale := func(v uint8) uint8 {
		return uint8((uint32(v)*a + 127) / 255)
	}
	return scale(c.GetR()), scale(c.GetG()), scale(c.GetB())
}

func (c ColorVal) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.GetR(), c.GetG(), c.GetB())
}

func setcolor(c uint32, n uint8, off uint8) uint32 {
	var val uint32 = uint32(n) << off
	var mask uint32 = 0xFF << off
	return (c & (^mask)) | val
}

func getcolor(c uint32, off uint8) uint8 {
	var mask uint32 = 0xFF << off
	return uint8((c & mask) >> off)
}

func (c *ColorVal) SetR(r uint8) {
	c.val = setcolor(c.val, r, RED_OFFSET)
}
func (c *ColorVal) SetG(g uint8) {
	c.val = setcolor(c.val, g, GREEN_OFFSET)
}
func (c *ColorVal) SetB(b uint8) {
	c.val = setcolor(c.val, b, BLUE_OFFSET)
}
func (c *ColorVal) SetA(a uint8) {
	c.val = setcolor(c.val, a, ALPHA_OFFSET)
}

func (c ColorVal) GetR() uint8 {
	return getcolor(c.val, RED_OFFSET)
}
func (c ColorVal) GetG() uint8 {
	return getcolor(c.val, GREEN_OFFSET)
}
func (c ColorVal) GetB() uint8 {
	return getcolor(c.val, BLUE_OFFSET)
}
func (c ColorVal) GetA() uint8 {
	return getcolor(c.val, ALPHA_OFFSET)
}

// ColorWheel maps h onto the fully saturated hue circle. h wraps, so 1.25
// and -0.75 both land on 0.25. NaN and infinities map to red.
func ColorWheel(h float64) ColorVal {
	if math.IsNaN(h) || math.IsInf(h, 0) {
		h = 0
	}
	h -= math.Floor(h)
	h *= 6
	switch {
	case h < 1.:
		return RGB(255, byte(255*h), 0)
	case h < 2.:
		return RGB(byte(255*(2-h)), 255, 0)
	case h < 3.:
		return RGB(0, 255, byte(255*(h-2)))
	case h < 4.:
		return RGB(0, byte(255*(4-h)), 255)
	case h < 5.:
		return RGB(byte(255*(h-4)), 0, 255)
	default:
		return RGB(255, 0, byte(255*(6-h)))
	}
}
