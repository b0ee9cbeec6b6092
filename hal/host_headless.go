//go:build !tinygo

package hal

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// HeadlessConfig controls the host runner.
type HeadlessConfig struct {
	// Hz is the tick rate of the HAL time stream.
	Hz int
	// Ticks stops the run after that many ticks. Zero runs until ctx ends.
	Ticks uint64
}

// RunHeadless runs app against a host HAL while pumping wall-clock ticks
// into its time stream. The context handed to app is canceled when ctx ends
// or the tick budget runs out; running out of budget is not an error.
func RunHeadless(ctx context.Context, cfg HeadlessConfig, app func(ctx context.Context, h HAL) error) error {
	if cfg.Hz <= 0 {
		cfg.Hz = 1000
	}
	d := time.Second / time.Duration(cfg.Hz)
	if d <= 0 {
		return fmt.Errorf("invalid headless hz: %d", cfg.Hz)
	}

	h := New(cfg.Hz).(*hostHAL)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var spent atomic.Bool
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return app(gctx, h)
	})
	g.Go(func() error {
		t := time.NewTicker(d)
		defer t.Stop()
		var n uint64
		for {
			select {
			case <-gctx.Done():
				return nil
			case now := <-t.C:
				n += h.t.step(now)
				if cfg.Ticks > 0 && n >= cfg.Ticks {
					spent.Store(true)
					cancel()
					return nil
				}
			}
		}
	})

	err := g.Wait()
	if spent.Load() && ctx.Err() == nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
