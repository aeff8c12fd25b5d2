package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var errNotYet = errors.New("condition not met yet")

// pollUntil evaluates check up to attempts times, delay apart, until it
// reports done. Errors returned by check are treated like an unmet condition.
func pollUntil(
	ctx context.Context, attempts int, delay time.Duration,
	check func(ctx context.Context) (bool, error),
) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	err := backoff.Retry(func() error {
		done, err := check(ctx)
		if err != nil {
			lastErr = err
			return err
		}
		if !done {
			return errNotYet
		}
		return nil
	}, constantBackoff(ctx, attempts-1, delay))
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if lastErr != nil {
		return fmt.Errorf("%w after %d attempts: %s", ErrNotConfirmed, attempts, lastErr)
	}
	return fmt.Errorf("%w after %d attempts", ErrNotConfirmed, attempts)
}

// retryOnce runs op and, if it fails, runs it exactly once more after delay.
func retryOnce(
	ctx context.Context, delay time.Duration, op func() error,
	notify func(err error, wait time.Duration),
) error {
	return backoff.RetryNotify(op, constantBackoff(ctx, 1, delay), notify)
}

func constantBackoff(
	ctx context.Context, retries int, delay time.Duration,
) backoff.BackOffContext {
	return backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(retries)), ctx,
	)
}
