package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli"

	buttonshim "github.com/coreman2200/funtimes-buttonshim"
	"github.com/coreman2200/funtimes-buttonshim/internal/config"
	"github.com/coreman2200/funtimes-buttonshim/internal/simbus"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("buttonshim")
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "buttonshim"
	app.Usage = "drive a Button SHIM: five buttons and one RGB LED over I2C"
	app.Version = "0.3.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "Path to a YAML config file",
		},
		cli.StringFlag{
			Name:  "bus",
			Usage: "I2C bus name or number (empty picks the first one)",
		},
		cli.BoolFlag{
			Name:  "sim",
			Usage: "Use an in-memory shim; type a..e + enter to toggle buttons",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "trace, debug, info, warn or error",
		},
		cli.StringFlag{
			Name:  "http-addr",
			Usage: "Serve /events and /health on this address (e.g. :8080)",
		},
		cli.BoolFlag{
			Name:  "preview",
			Usage: "Mirror the LED on the terminal",
		},
		cli.DurationFlag{
			Name:  "poll-interval",
			Usage: "Button sampling interval",
		},
		cli.DurationFlag{
			Name:  "hold-threshold",
			Usage: "How long a button must stay down to count as held",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "Light the LED in the palette colour of the last pressed button",
			Action: runRainbow,
		},
		{
			Name:   "watch",
			Usage:  "Log every button transition",
			Action: runWatch,
		},
		{
			Name:      "color",
			Usage:     "Set the LED once and exit",
			ArgsUsage: "<r> <g> <b> | <#rrggbb>",
			Action:    runColor,
		},
	}
	app.Action = runRainbow
	return app
}

// loadConfig reads the config file, if any, and applies the global flags
// on top of it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.GlobalString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zerolog.SetGlobalLevel(lvl)
	return cfg, nil
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.GlobalIsSet("bus") {
		cfg.Bus = c.GlobalString("bus")
	}
	if c.GlobalIsSet("sim") {
		cfg.Sim = c.GlobalBool("sim")
	}
	if c.GlobalIsSet("log-level") {
		cfg.LogLevel = c.GlobalString("log-level")
	}
	if c.GlobalIsSet("http-addr") {
		cfg.HTTPAddr = c.GlobalString("http-addr")
	}
	if c.GlobalIsSet("preview") {
		cfg.Preview = c.GlobalBool("preview")
	}
	if c.GlobalIsSet("poll-interval") {
		cfg.PollInterval = c.GlobalDuration("poll-interval")
	}
	if c.GlobalIsSet("hold-threshold") {
		cfg.HoldThreshold = c.GlobalDuration("hold-threshold")
	}
}

// openShim returns the hardware shim, or a simulated one together with its
// bus when cfg.Sim is set.
func openShim(cfg *config.Config) (*buttonshim.Shim, *simbus.Bus, error) {
	opts := &buttonshim.Opts{
		Addr:          cfg.Address,
		HoldThreshold: cfg.HoldThreshold,
		FailureLimit:  cfg.FailureLimit,
	}
	if cfg.Sim {
		sb := simbus.New(cfg.Address)
		s, err := buttonshim.New(sb, opts)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Stringer("bus", sb).Msg("using simulated shim")
		return s, sb, nil
	}
	s, err := buttonshim.Open(cfg.Bus, opts)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Stringer("shim", s).Msg("shim ready")
	return s, nil, nil
}
