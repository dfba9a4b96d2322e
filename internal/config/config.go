package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coreman2200/funtimes-buttonshim/model"
)

type Palette struct {
	A string `yaml:"a"`
	B string `yaml:"b"`
	C string `yaml:"c"`
	D string `yaml:"d"`
	E string `yaml:"e"`
}

// Rainbow spreads the five buttons evenly around the colour wheel,
// starting at red on A.
func Rainbow() Palette {
	var c [model.NumChannels]string
	for i := range c {
		c[i] = model.ColorWheel(float64(i) / model.NumChannels).String()
	}
	return Palette{A: c[0], B: c[1], C: c[2], D: c[3], E: c[4]}
}

// UnmarshalYAML accepts either a per-button mapping or the scalar
// "rainbow". Buttons missing from a mapping keep their current colour.
func (p *Palette) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		if value.Value != "rainbow" {
			return fmt.Errorf("palette: unknown preset %q", value.Value)
		}
		*p = Rainbow()
		return nil
	}
	type plain Palette
	return value.Decode((*plain)(p))
}

type Config struct {
	Bus     string `yaml:"bus"`     // periph bus name, "" = first available
	Address uint16 `yaml:"address"` // 7-bit I2C address
	Sim     bool   `yaml:"sim"`     // use the in-memory bus

	PollInterval     time.Duration `yaml:"poll_interval"`
	HoldThreshold    time.Duration `yaml:"hold_threshold"`
	FailureLimit     int           `yaml:"failure_limit"`
	SubscriberBuffer int           `yaml:"subscriber_buffer"`

	LogLevel string `yaml:"log_level"`
	HTTPAddr string `yaml:"http_addr,omitempty"` // e.g. :8080, empty disables
	Preview  bool   `yaml:"preview"`             // mirror the LED on the console

	Palette Palette `yaml:"palette"`
}

// Default mirrors the rainbow demo: A violet, B blue, C green, D yellow, E red.
func Default() *Config {
	return &Config{
		Address:          0x3f,
		PollInterval:     100 * time.Millisecond,
		HoldThreshold:    model.DefaultHoldThreshold,
		FailureLimit:     10,
		SubscriberBuffer: 16,
		LogLevel:         "info",
		Palette: Palette{
			A: "#9400d3",
			B: "#0000ff",
			C: "#00ff00",
			D: "#ffff00",
			E: "#ff0000",
		},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default value.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

func (c *Config) Validate() error {
	if c.Address == 0 || c.Address > 0x7f {
		return fmt.Errorf("address 0x%x is not a 7-bit I2C address", c.Address)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.HoldThreshold <= 0 {
		return fmt.Errorf("hold_threshold must be positive")
	}
	if c.FailureLimit < 0 {
		return fmt.Errorf("failure_limit must not be negative")
	}
	if _, err := c.Colors(); err != nil {
		return err
	}
	return nil
}

// Colors parses the palette into per-channel colours.
func (c *Config) Colors() ([model.NumChannels]model.ColorVal, error) {
	var out [model.NumChannels]model.ColorVal
	for i, s := range []string{c.Palette.A, c.Palette.B, c.Palette.C, c.Palette.D, c.Palette.E} {
		v, err := model.ParseColor(s)
		if err != nil {
			return out, fmt.Errorf("palette %s: %w", model.Channel(i), err)
		}
		out[i] = v
	}
	return out, nil
}
