package confidential

import (
	"context"
	"log/slog"
	"time"

	"github.com/veilcast/veilcast/internal/domain"
)

// Oracle drains an Engine's decryption requests and delivers cleartexts to
// the ledger's callback after a configurable latency. It simulates the
// asynchronous decryption oracle of a real confidential backend: the request
// returns immediately, the callback arrives later as an independent call.
type Oracle struct {
	engine   *Engine
	callback domain.DecryptionCallback
	latency  time.Duration
	logger   *slog.Logger
}

// NewOracle creates an oracle loop over engine. The callback is invoked once
// per request, in request order.
func NewOracle(engine *Engine, callback domain.DecryptionCallback, latency time.Duration, logger *slog.Logger) *Oracle {
	return &Oracle{
		engine:   engine,
		callback: callback,
		latency:  latency,
		logger:   logger.With(slog.String("component", "decryption_oracle")),
	}
}

// Run blocks until ctx is cancelled, delivering callbacks for every queued
// request. Delivery failures are logged, not retried; a rejected callback
// (stale request, already-finalized event) is terminal by design.
func (o *Oracle) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-o.engine.Requests():
			if o.latency > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(o.latency):
				}
			}

			if err := o.callback(ctx, req.ID, req.Cleartext); err != nil {
				o.logger.ErrorContext(ctx, "callback rejected",
					slog.String("request_id", req.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			o.logger.InfoContext(ctx, "decryption delivered",
				slog.String("request_id", req.ID),
			)
		}
	}
}
