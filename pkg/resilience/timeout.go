package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CallWithTimeout runs fn under a derived deadline. A non-positive timeout
// runs fn with ctx unchanged. Deadline errors caused by the derived context
// are annotated with name and the limit; cancellation of ctx itself passes
// through untouched.
func CallWithTimeout[T any](ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	v, err := fn(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		var zero T
		return zero, fmt.Errorf("%s: %w (limit: %v)", name, context.DeadlineExceeded, timeout)
	}
	return v, err
}
