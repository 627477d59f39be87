package collectors

import (
	"context"
	"fmt"
	"time"

	"github.com/breeze-rmm/startup-optimizer/internal/logging"
)

var log = logging.L("collectors")

// Source names used in logs, health checks and collection errors.
const (
	SourceAutoruns   = "autoruns"
	SourceServices   = "services"
	SourceBootEvents = "boot_events"
)

const defaultSourceTimeout = 5 * time.Second

// callResult carries a capability answer across the timeout boundary.
type callResult[T any] struct {
	value T
	err   error
}

// callWithTimeout runs fn under a deadline. A capability that ignores its
// context is abandoned when the deadline passes; its goroutine finishes on
// its own and the late result is discarded.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		timeout = defaultSourceTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan callResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- callResult[T]{value: zero, err: fmt.Errorf("capability panicked: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- callResult[T]{value: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil && ctx.Err() != nil {
			// Answer arrived after the deadline fired; treat as unreachable.
			var zero T
			return zero, timeoutError(ctx, timeout)
		}
		return res.value, res.err
	case <-ctx.Done():
		var zero T
		return zero, timeoutError(ctx, timeout)
	}
}

func timeoutError(ctx context.Context, timeout time.Duration) error {
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w after %s", ErrSourceTimeout, timeout)
	}
	return ctx.Err()
}
