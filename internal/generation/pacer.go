package generation

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces provider batches. One Pacer is shared by every run in the process, so
// concurrent runs together stay under the configured call rate.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer allows one batch per interval. A non-positive interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next batch may start.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// Take records a batch that starts now without waiting. The first batch of a run goes
// straight to the provider; later batches of every run are spaced after it.
func (p *Pacer) Take() {
	p.limiter.Reserve()
}
