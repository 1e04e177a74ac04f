package notify

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer is consulted before every send attempt. attempt is the zero-based
// index of the attempt within the batch. Returning an error aborts the batch.
type Pacer interface {
	Wait(ctx context.Context, attempt int) error
}

// PacerFunc adapts a function to Pacer.
type PacerFunc func(ctx context.Context, attempt int) error

// Wait implements Pacer.
func (f PacerFunc) Wait(ctx context.Context, attempt int) error {
	return f(ctx, attempt)
}

// NoPacer never waits.
var NoPacer Pacer = PacerFunc(func(ctx context.Context, _ int) error {
	return ctx.Err()
})

const (
	DefaultBatchSize  = 10
	DefaultBatchPause = 2 * time.Second
)

// BatchPacer pauses for Pause before every BatchSize-th attempt after the first.
type BatchPacer struct {
	BatchSize int
	Pause     time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewBatchPacer returns a BatchPacer, applying defaults for non-positive values.
func NewBatchPacer(batchSize int, pause time.Duration) *BatchPacer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if pause < 0 {
		pause = DefaultBatchPause
	}
	return &BatchPacer{BatchSize: batchSize, Pause: pause, sleep: sleepContext}
}

// Wait implements Pacer.
func (p *BatchPacer) Wait(ctx context.Context, attempt int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if attempt == 0 || p.BatchSize <= 0 || attempt%p.BatchSize != 0 || p.Pause <= 0 {
		return nil
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return sleep(ctx, p.Pause)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RatePacer spaces sends with a token bucket.
type RatePacer struct {
	limiter *rate.Limiter
}

// NewRatePacer allows perSecond sends per second with the given burst.
func NewRatePacer(perSecond float64, burst int) *RatePacer {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &RatePacer{limiter: rate.NewLimiter(limit, burst)}
}

// Wait implements Pacer.
func (p *RatePacer) Wait(ctx context.Context, _ int) error {
	return p.limiter.Wait(ctx)
}
