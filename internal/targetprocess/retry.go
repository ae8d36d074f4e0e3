package targetprocess

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Outcome classifies one attempt for the retry driver.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeRecoverable
	OutcomeFatal
)

// classify maps an error to a retry outcome. Network failures and server
// errors are recoverable; validation and not-found are fatal, as retrying
// cannot change the request's validity.
func classify(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case ErrKindNetwork, ErrKindServer:
			return OutcomeRecoverable
		}
	}
	return OutcomeFatal
}

// RetryPolicy bounds retries with exponential backoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy: 3 attempts, 1s base delay doubling per attempt, capped
// at 60s.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   time.Second,
	MaxDelay:    60 * time.Second,
}

// Do runs fn until it succeeds, fails fatally, or exhausts the attempt
// ceiling. The last error is returned unwrapped so callers can inspect its
// kind.
func (p RetryPolicy) Do(ctx context.Context, logger *zap.Logger, op string, fn func() error) error {
	delay := p.BaseDelay
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn()
		switch classify(err) {
		case OutcomeOK:
			return nil
		case OutcomeFatal:
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}
		logger.Warn("retrying after recoverable failure",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return err
}
