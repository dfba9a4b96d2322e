package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	buttonshim "github.com/coreman2200/funtimes-buttonshim"
	"github.com/coreman2200/funtimes-buttonshim/buttons"
	"github.com/coreman2200/funtimes-buttonshim/internal/config"
	"github.com/coreman2200/funtimes-buttonshim/internal/eventws"
	"github.com/coreman2200/funtimes-buttonshim/internal/preview"
	"github.com/coreman2200/funtimes-buttonshim/model"
)

// pixel is what the reactor needs to light the LED.
type pixel interface {
	SetPixel(c model.ColorVal) error
	Off() error
}

func runRainbow(c *cli.Context) error {
	return serve(c, func(ctx context.Context, s *buttonshim.Shim, sub *buttons.Subscription, cfg *config.Config) error {
		palette, err := cfg.Colors()
		if err != nil {
			return err
		}
		var mirror *preview.Mirror
		if cfg.Preview {
			mirror = preview.Console()
			defer mirror.Halt()
		}
		return react(ctx, s.LED, sub, palette, mirror)
	})
}

func runWatch(c *cli.Context) error {
	return serve(c, func(ctx context.Context, s *buttonshim.Shim, sub *buttons.Subscription, cfg *config.Config) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-sub.C:
				if !ok {
					return nil
				}
				log.Info().Stringer("channel", ev.Channel).Stringer("state", ev.State.Kind).Msg("button")
			}
		}
	})
}

func runColor(c *cli.Context) error {
	col, err := parseColorArgs(c.Args())
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	s, _, err := openShim(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Detach(); err != nil {
			log.Warn().Err(err).Msg("detach")
		}
	}()
	if err := s.LED.SetPixel(col); err != nil {
		return err
	}
	if cfg.Preview {
		if err := preview.Console().Show(col); err != nil {
			return err
		}
		fmt.Println()
	}
	log.Info().Stringer("color", col).Msg("LED set")
	return nil
}

type handler func(ctx context.Context, s *buttonshim.Shim, sub *buttons.Subscription, cfg *config.Config) error

// serve opens the shim, starts the sampler and the optional event server,
// and runs h until SIGINT/SIGTERM or the first failure.
func serve(c *cli.Context, h handler) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	s, sb, err := openShim(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Warn().Err(err).Msg("close")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if sb != nil {
		go simInput(sb, os.Stdin)
	}

	sub := s.Buttons.Subscribe(cfg.SubscriberBuffer)
	defer func() {
		if n := sub.Dropped(); n > 0 {
			log.Warn().Uint64("dropped", n).Msg("events dropped")
		}
	}()
	runner := s.Buttons.Start(ctx, cfg.PollInterval)
	g.Go(func() error {
		<-runner.Done()
		return runner.Err()
	})
	g.Go(func() error {
		return h(ctx, s, sub, cfg)
	})

	if cfg.HTTPAddr != "" {
		events := eventws.New(s.Buttons)
		srv := &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      events.Handler(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		wsSub := s.Buttons.Subscribe(cfg.SubscriberBuffer)
		g.Go(func() error {
			return events.Run(ctx, wsSub)
		})
		g.Go(func() error {
			log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if n := runner.Failures(); n > 0 {
		log.Warn().Uint64("failures", n).AnErr("last", runner.LastError()).Msg("failed samples")
	}
	log.Info().Msg("shutting down")
	return err
}

// react lights the LED in the palette colour of each newly pressed button.
// The LED starts off.
func react(ctx context.Context, led pixel, sub *buttons.Subscription, palette [model.NumChannels]model.ColorVal, mirror *preview.Mirror) error {
	if err := led.Off(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			if ev.State.Kind != model.Pressed {
				continue
			}
			col := palette[ev.Channel]
			if err := led.SetPixel(col); err != nil {
				// The sampler keeps running; the next press retries.
				log.Warn().Err(err).Stringer("channel", ev.Channel).Msg("LED update failed")
				continue
			}
			log.Debug().Stringer("channel", ev.Channel).Stringer("color", col).Msg("LED")
			if mirror != nil {
				if err := mirror.Show(col); err != nil {
					log.Debug().Err(err).Msg("preview")
				}
			}
		}
	}
}

// parseColorArgs accepts either three 0-255 components or one hex colour.
func parseColorArgs(args []string) (model.ColorVal, error) {
	switch len(args) {
	case 1:
		return model.ParseColor(args[0])
	case 3:
		var rgb [3]uint8
		for i, a := range args {
			v, err := strconv.ParseUint(a, 0, 8)
			if err != nil {
				return model.ColorVal{}, fmt.Errorf("component %q: %w", a, err)
			}
			rgb[i] = uint8(v)
		}
		return model.RGB(rgb[0], rgb[1], rgb[2]), nil
	default:
		return model.ColorVal{}, fmt.Errorf("expected <r> <g> <b> or <#rrggbb>, got %d arguments", len(args))
	}
}
