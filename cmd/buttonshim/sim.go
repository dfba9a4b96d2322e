package main

import (
	"bufio"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-buttonshim/internal/simbus"
	"github.com/coreman2200/funtimes-buttonshim/model"
)

// simInput toggles simulated buttons from lines such as "a" or "c e".
func simInput(sb *simbus.Bus, r io.Reader) {
	down := map[model.Channel]bool{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		for _, f := range strings.Fields(sc.Text()) {
			ch, err := model.ParseChannel(f)
			if err != nil {
				log.Warn().Str("input", f).Msg("not a button, use a..e")
				continue
			}
			if down[ch] {
				sb.Release(ch)
			} else {
				sb.Press(ch)
			}
			down[ch] = !down[ch]
		}
	}
}
