// Package preview mirrors the shim's LED onto another display, typically
// the terminal when no hardware is around.
package preview

import (
	"image"
	"image/color"
	"sync"

	"periph.io/x/conn/v3/display"
	"periph.io/x/extra/devices/screen"

	"github.com/coreman2200/funtimes-buttonshim/model"
)

type Mirror struct {
	mu     sync.Mutex
	drawer display.Drawer
	img    *image.NRGBA
	last   model.ColorVal
	shown  bool
}

// New mirrors onto d. The LED is painted into every pixel of d.
func New(d display.Drawer) *Mirror {
	return &Mirror{
		drawer: d,
		img:    image.NewNRGBA(d.Bounds()),
	}
}

// Console mirrors onto a one-pixel ANSI terminal display.
func Console() *Mirror {
	return New(screen.New(1))
}

// Show paints c. Repeating the last colour is a no-op.
func (m *Mirror) Show(c model.ColorVal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shown && c == m.last {
		return nil
	}
	r, g, b := c.ToRGB()
	fill := color.NRGBA{R: r, G: g, B: b, A: 0xff}
	bounds := m.img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			m.img.SetNRGBA(x, y, fill)
		}
	}
	if err := m.drawer.Draw(m.drawer.Bounds(), m.img, bounds.Min); err != nil {
		return err
	}
	m.last, m.shown = c, true
	return nil
}

func (m *Mirror) Halt() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shown = false
	return m.drawer.Halt()
}

func (m *Mirror) String() string {
	return "preview{" + m.drawer.String() + "}"
}
