package flow

import (
	"context"
	"sync"
	"time"
)

// Poller runs a function at a fixed interval until stopped. It is single-use:
// one Start, one effective Stop. The checkout session creates a fresh poller
// each time it enters the processing state, which keeps "exactly one active
// timer per session" trivially true.
type Poller struct {
	interval time.Duration
	fn       func(ctx context.Context)

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	stopped  bool
	stopOnce sync.Once
}

// NewPoller creates a poller that invokes fn every interval.
func NewPoller(interval time.Duration, fn func(ctx context.Context)) *Poller {
	return &Poller{interval: interval, fn: fn}
}

// Start launches the polling goroutine. Calling Start twice is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil || p.stopped {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.fn(ctx)
			}
		}
	}(p.done)
}

// Stop cancels the polling goroutine. Safe to call multiple times, from any
// goroutine, including from within the polled function itself; it does not
// wait for the goroutine to exit (use Done for that).
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		cancel := p.cancel
		p.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
}

// Done returns a channel closed once the polling goroutine has exited, or
// nil if the poller was never started.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}
