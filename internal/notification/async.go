package notification

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/mailseat/internal/observability/metrics"
	"go.uber.org/zap"
)

// AsyncDispatcher hands messages to a goroutine so that slow mail servers
// never hold up a request. The request context's values are kept but its
// cancellation is not.
type AsyncDispatcher struct {
	next    Dispatcher
	log     *zap.Logger
	metrics *metrics.MembershipMetrics
	timeout func() time.Duration
	wg      sync.WaitGroup
}

func NewAsyncDispatcher(next Dispatcher, log *zap.Logger, m *metrics.MembershipMetrics, timeout func() time.Duration) *AsyncDispatcher {
	return &AsyncDispatcher{
		next:    next,
		log:     log.Named("notification"),
		metrics: m,
		timeout: timeout,
	}
}

// Dispatch always returns nil; failures are reported on the logger.
func (d *AsyncDispatcher) Dispatch(ctx context.Context, msg Message) error {
	detached := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		sendCtx, cancel := context.WithTimeout(detached, d.timeout())
		defer cancel()

		if err := d.next.Dispatch(sendCtx, msg); err != nil {
			d.metrics.SideEffectFailed("notification")
			d.log.Warn("notification delivery failed",
				zap.String("kind", string(msg.Kind)),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (d *AsyncDispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
