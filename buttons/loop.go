package buttons

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInterval is the sampling cadence used when Start gets a
// non-positive interval.
const DefaultInterval = 50 * time.Millisecond

// Runner is the handle to a running sampling loop.
type Runner struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	failures atomic.Uint64

	mu      sync.Mutex
	err     error
	lastErr error
}

// Start samples every interval in the background until ctx is cancelled,
// Stop is called or FailureLimit consecutive samples fail. The first sample
// is taken immediately.
func (b *Buttons) Start(ctx context.Context, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	r := &Runner{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.wg.Add(1)
	go b.poll(ctx, r, interval)
	go func() {
		r.wg.Wait()
		close(r.done)
	}()
	return r
}

func (b *Buttons) poll(ctx context.Context, r *Runner, interval time.Duration) {
	defer r.wg.Done()
	defer r.cancel()

	b.log.Info().Dur("interval", interval).Msg("polling started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		if _, err := b.SampleOnce(); err != nil {
			failures++
			r.recordFailure(err)
			b.log.Warn().Err(err).Int("consecutive", failures).Msg("sample failed")
			if b.failureLimit > 0 && failures >= b.failureLimit {
				r.setErr(err)
				b.log.Error().Err(err).Int("limit", b.failureLimit).Msg("polling stopped after repeated failures")
				return
			}
		} else {
			failures = 0
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			b.log.Info().Msg("polling stopped")
			return
		}
	}
}

func (r *Runner) recordFailure(err error) {
	r.failures.Add(1)
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
}

func (r *Runner) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Stop cancels the loop and waits for it to exit. It returns the error
// that ended the loop, if any.
func (r *Runner) Stop() error {
	r.cancel()
	<-r.done
	return r.Err()
}

// Done is closed once the loop has exited.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Err returns the transport error that stopped the loop, or nil.
func (r *Runner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Failures counts every failed sample since Start, whether or not the loop
// kept going.
func (r *Runner) Failures() uint64 {
	return r.failures.Load()
}

// LastError returns the most recent sample error, or nil if none failed.
func (r *Runner) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}
