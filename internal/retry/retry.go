// Package retry wraps provider calls with exponential backoff and
// retryable/fatal error classification.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lkaczmarek/paragon-pipeline/internal/common"
)

// minDelay floors the jittered backoff so synchronized clients never hammer
// the provider with near-zero sleeps.
const minDelay = 100 * time.Millisecond

// Policy retries a call on transient failures with exponential backoff and
// ±20% jitter. Zero fields fall back to defaults in New.
type Policy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// OnRetry is a best-effort observability hook invoked before each sleep.
	// Its own panics are swallowed; a broken callback must not break the call.
	OnRetry func(err error, attempt int)

	logger *slog.Logger
}

func New(cfg common.RetryConfig, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Policy{
		MaxAttempts:   cfg.MaxAttempts,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		BackoffFactor: cfg.BackoffFactor,
		logger:        logger,
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.BackoffFactor <= 1 {
		p.BackoffFactor = 2.0
	}
	return p
}

// Do invokes fn, retrying on retryable errors up to MaxAttempts total
// attempts. Fatal errors surface immediately; on exhaustion the last error is
// returned.
func (p *Policy) Do(ctx context.Context, fn func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialDelay
	exp.MaxInterval = p.MaxDelay
	exp.Multiplier = p.BackoffFactor
	exp.RandomizationFactor = 0.2
	exp.MaxElapsedTime = 0
	exp.Reset()

	attempt := 0
	op := func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !Retryable(err) || attempt >= p.MaxAttempts {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		p.logger.Warn("retry.attempt_failed",
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"next_delay_ms", next.Milliseconds(),
			"error", err,
		)
		p.fireOnRetry(err, attempt)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(&flooredBackOff{inner: exp}, ctx), notify)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Unwrap()
	}
	return err
}

func (p *Policy) fireOnRetry(err error, attempt int) {
	if p.OnRetry == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("retry.on_retry_panic", "panic", r)
		}
	}()
	p.OnRetry(err, attempt)
}

// Retryable reports whether an error is worth another attempt: network and
// timeout failures plus provider 5xx. Provider 4xx, validation and conversion
// errors are fatal.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *common.HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status >= 500
	}
	switch common.KindOf(err) {
	case common.KindTransient:
		return true
	case common.KindValidation, common.KindMalformedResponse,
		common.KindUnparsableDate, common.KindNumericConversion:
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// flooredBackOff clamps the schedule so jitter never drops a delay under
// minDelay.
type flooredBackOff struct {
	inner backoff.BackOff
}

func (f *flooredBackOff) NextBackOff() time.Duration {
	d := f.inner.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	if d < minDelay {
		return minDelay
	}
	return d
}

func (f *flooredBackOff) Reset() { f.inner.Reset() }
