package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-buttonshim/model"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	colors, err := c.Colors()
	require.NoError(t, err)
	assert.Equal(t, model.RGB(0x94, 0x00, 0xd3), colors[model.A])
	assert.Equal(t, model.RGB(0xff, 0x00, 0x00), colors[model.E])
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bus: "1"
poll_interval: 20ms
hold_threshold: 1.5s
palette:
  a: "#010203"
`), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "1", c.Bus)
	assert.Equal(t, 20*time.Millisecond, c.PollInterval)
	assert.Equal(t, 1500*time.Millisecond, c.HoldThreshold)
	assert.Equal(t, uint16(0x3f), c.Address)
	assert.Equal(t, "#010203", c.Palette.A)
	assert.Equal(t, "#0000ff", c.Palette.B)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"address":  "address: 200\n",
		"interval": "poll_interval: 0s\n",
		"palette":  "palette:\n  c: nope\n",
		"syntax":   "bus: [\n",
		"preset":   "palette: pastel\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.True(t, os.IsNotExist(err))
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	c := Default()
	c.HTTPAddr = ":9000"
	c.Sim = true
	require.NoError(t, Save(path, c))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestRainbowPalette(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rainbow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("palette: rainbow\n"), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Rainbow(), c.Palette)

	colors, err := c.Colors()
	require.NoError(t, err)
	assert.Equal(t, model.RGB(0xff, 0x00, 0x00), colors[model.A])
	for i, col := range colors {
		assert.Equal(t, model.ColorWheel(float64(i)/model.NumChannels), col)
	}

	// Saved as a mapping, loads back unchanged.
	out := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, Save(out, c))
	got, err := Load(out)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}
