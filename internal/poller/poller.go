// Package poller runs discovery cycles on a fixed interval and backs off
// exponentially while cycles keep failing.
package poller

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/muurk/machinewatch/internal/reconcile"
)

const (
	initialFailureDelay = 2 * time.Second
	maxFailureDelay     = 5 * time.Minute
)

// Poller drives a Runner periodically. The next cycle starts only after the
// previous one returned.
type Poller struct {
	runner   reconcile.Runner
	request  reconcile.Request
	interval time.Duration
	log      *zap.Logger
	backoff  *backoff.ExponentialBackOff

	// wait is swapped in tests
	wait func(ctx context.Context, d time.Duration) error
}

// New creates a poller running req every interval
func New(runner reconcile.Runner, req reconcile.Request, interval time.Duration, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialFailureDelay
	bo.MaxInterval = maxFailureDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.2

	return &Poller{
		runner:   runner,
		request:  req,
		interval: interval,
		log:      log,
		backoff:  bo,
		wait:     sleep,
	}
}

// Run polls until ctx is done. It returns nil on cancellation.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("discovery poller started", zap.Duration("interval", p.interval))
	defer p.log.Info("discovery poller stopped")

	for {
		delay := p.step(ctx)
		if err := p.wait(ctx, delay); err != nil {
			return nil
		}
	}
}

// step runs one cycle and returns how long to wait before the next
func (p *Poller) step(ctx context.Context) time.Duration {
	res, err := p.runner.RunCycle(ctx, p.request)
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		delay := p.backoff.NextBackOff()
		p.log.Warn("discovery cycle failed", zap.Error(err), zap.Duration("retry_in", delay))
		return delay
	}

	p.backoff.Reset()
	p.log.Debug("discovery cycle finished",
		zap.String("cycle", res.CycleID),
		zap.Int("discovered", res.DiscoveredCount))
	return p.interval
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
