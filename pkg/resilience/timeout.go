package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithTimeout runs fn with a context that expires after the given timeout
// and classifies the failure. fn must honour its context; the call returns
// when fn does, so nothing is left running in the background. A timeout of
// zero or less runs fn against the parent context unchanged.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	bounded, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(bounded)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: deadline of %v exceeded: %w", name, timeout, err)
	default:
		return fmt.Errorf("%s: %w", name, err)
	}
}
