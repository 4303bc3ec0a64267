package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// BreakerDispatcher wraps a Dispatcher with a circuit breaker so a
// struggling transport fails fast instead of eating the whole dispatch
// timeout on every reminder in a tick.
type BreakerDispatcher struct {
	inner Dispatcher
	cb    *gobreaker.CircuitBreaker[any]
}

func NewBreakerDispatcher(inner Dispatcher, log zerolog.Logger) *BreakerDispatcher {
	settings := gobreaker.Settings{
		Name:    "notification-dispatch",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("dispatch breaker state changed")
		},
	}

	return &BreakerDispatcher{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[any](settings),
	}
}

func (d *BreakerDispatcher) Dispatch(ctx context.Context, req Request) error {
	_, err := d.cb.Execute(func() (any, error) {
		return nil, d.inner.Dispatch(ctx, req)
	})
	return err
}
