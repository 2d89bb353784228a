package k8s

import (
	"context"
	"errors"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"
)

// transientBackoff paces retries of console calls: 100ms, 300ms, 900ms, at most three attempts.
var transientBackoff = wait.Backoff{
	Steps:    3,
	Duration: 100 * time.Millisecond,
	Factor:   3,
	Jitter:   0.1,
	Cap:      2 * time.Second,
}

// isRetryable returns true for 5xx and 429 (too many requests).
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if apierrors.IsTooManyRequests(err) || apierrors.IsInternalError(err) || apierrors.IsServerTimeout(err) {
		return true
	}
	var se *apierrors.StatusError
	return errors.As(err, &se) && se.ErrStatus.Code >= 500
}

// retryTransient runs fn until it succeeds, fails with a non-transient error, ctx ends or
// transientBackoff is exhausted. The last error is returned unwrapped.
func retryTransient[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var result T
	err := retry.OnError(transientBackoff, func(err error) bool {
		return ctx.Err() == nil && isRetryable(err)
	}, func() error {
		var fnErr error
		result, fnErr = fn()
		return fnErr
	})
	return result, err
}
