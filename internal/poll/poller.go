package poll

import (
	"context"
	"log/slog"
	"time"
)

// Poller invokes a task at a fixed interval until the context ends.
type Poller struct {
	clock    Clock
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller creates a poller with the given interval.
func NewPoller(clock Clock, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{clock: clock, interval: interval, logger: logger}
}

// Run blocks, invoking fn once per interval until ctx is done. The task
// does not run at time zero; callers wanting an immediate pass invoke fn
// themselves first.
func (p *Poller) Run(ctx context.Context, fn func(context.Context)) {
	t := p.clock.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Chan():
			fn(ctx)
		}
	}
}
