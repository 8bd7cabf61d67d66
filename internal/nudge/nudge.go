// Package nudge delivers eligibility-triggered payout retries through an
// in-process queue, decoupling the eligibility check from the money
// movement it may set off.
package nudge

import (
	"context"
	"log/slog"
)

// RetryFunc runs a payout retry pass for one payee.
type RetryFunc func(ctx context.Context, payeeID string) error

// Dispatcher is a buffered single-worker queue of payee retry nudges.
// Enqueue never blocks: when the buffer is full the nudge is dropped with a
// warning, because the scheduled sweep will pick the payee up anyway.
type Dispatcher struct {
	retry  RetryFunc
	queue  chan string
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher with the given queue depth.
func NewDispatcher(retry RetryFunc, buffer int, logger *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	return &Dispatcher{
		retry:  retry,
		queue:  make(chan string, buffer),
		logger: logger,
	}
}

// Enqueue queues a retry nudge for the payee. Returns false when the queue
// is full and the nudge was dropped.
func (d *Dispatcher) Enqueue(payeeID string) bool {
	select {
	case d.queue <- payeeID:
		return true
	default:
		d.logger.Warn("nudge queue full, dropping retry nudge", "payee_id", payeeID)
		return false
	}
}

// Start drains the queue until the context is canceled. Retry failures are
// logged and swallowed; the nudge is best-effort by contract.
func (d *Dispatcher) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payeeID := <-d.queue:
			d.runOne(ctx, payeeID)
		}
	}
}

func (d *Dispatcher) runOne(ctx context.Context, payeeID string) {
	if err := d.retry(ctx, payeeID); err != nil {
		d.logger.Warn("nudged payout retry failed", "payee_id", payeeID, "error", err)
		return
	}
	d.logger.Debug("nudged payout retry finished", "payee_id", payeeID)
}
