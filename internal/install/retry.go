package install

import (
	"context"
	"log/slog"
	"time"

	"depotdeck/internal/logging"
	"depotdeck/internal/services"
)

const maxRetryBackoff = 2 * time.Minute

// withRetry runs op up to retries+1 times. Only retryable failures are
// repeated, with exponential backoff starting at backoff. The gate is
// consulted before every attempt.
func withRetry(ctx context.Context, gate *Gate, logger *slog.Logger, label string, retries int, backoff time.Duration, op func(attempt int) error) error {
	delay := backoff
	for attempt := 0; ; attempt++ {
		if err := gate.Wait(ctx); err != nil {
			return err
		}
		err := op(attempt)
		if err == nil {
			return nil
		}
		if attempt >= retries || !services.IsRetryable(err) || ctx.Err() != nil {
			return err
		}
		logging.WarnWithContext(logger, "retrying after transient failure", "install_retry",
			logging.String("operation", label),
			logging.Int("attempt", attempt+1),
			logging.Int("retries", retries),
			logging.Duration("backoff", delay),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the attempt is repeated automatically"),
		)
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
		delay = min(delay*2, maxRetryBackoff)
	}
}
