package maps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"time"

	"k8s.io/klog/v2"
)

// RetryConfig controls retries of transient map server failures.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig returns the retry policy used when none is set.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
	}
}

func retryConfig(rc *RetryConfig) RetryConfig {
	if rc == nil {
		return DefaultRetryConfig()
	}
	return *rc
}

// retryable reports whether err is a 5xx/429 response or a transient network failure.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	var oe *net.OpError
	if errors.As(err, &oe) {
		return true
	}

	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

// withRetry runs fn until it succeeds, fails permanently, or runs out of attempts.
func withRetry(ctx context.Context, operation string, rc RetryConfig, fn func() error) error {
	var err error
	attempt := 0

	for ; attempt <= rc.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("%s canceled: %w", operation, ctx.Err())
		}
		if attempt > 0 {
			klog.V(1).Infof("retry %d/%d for %s", attempt, rc.MaxRetries, operation)
		}

		err = fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if attempt == rc.MaxRetries {
			break
		}

		backoff := backoffDuration(attempt, rc)
		klog.V(1).Infof("backing off %v before retrying %s: %v", backoff, operation, err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("%s canceled during retry: %w", operation, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, attempt+1, err)
}

func backoffDuration(attempt int, rc RetryConfig) time.Duration {
	factor := rc.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	backoff := float64(rc.InitialBackoff) * math.Pow(factor, float64(attempt))

	// ±20% jitter
	backoff *= 1 + (rand.Float64()*0.4 - 0.2)

	if rc.MaxBackoff > 0 && backoff > float64(rc.MaxBackoff) {
		backoff = float64(rc.MaxBackoff)
	}
	return time.Duration(backoff)
}
