package engine

import (
	"context"
	"fmt"
	"time"

	"reorder/internal/model"

	"github.com/rs/zerolog"
)

const (
	defaultBaseDelay = 1 * time.Minute
	defaultMaxDelay  = 1 * time.Hour
)

// RetryManager schedules bounded re-attempts for retryable failures. It only
// records when the next attempt is due; the external scheduler re-fires the
// pipeline, so pending retries survive process restarts.
type RetryManager struct {
	store     Store
	baseDelay time.Duration
	maxDelay  time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

func NewRetryManager(store Store, log zerolog.Logger) *RetryManager {
	return &RetryManager{
		store:     store,
		baseDelay: defaultBaseDelay,
		maxDelay:  defaultMaxDelay,
		now:       time.Now,
		log:       log,
	}
}

// WithDelays overrides the backoff bounds. Test hook and config entry point.
func (m *RetryManager) WithDelays(base, max time.Duration) *RetryManager {
	if base > 0 {
		m.baseDelay = base
	}
	if max > 0 {
		m.maxDelay = max
	}
	return m
}

// WithClock overrides the clock. Test hook.
func (m *RetryManager) WithClock(now func() time.Time) *RetryManager {
	m.now = now
	return m
}

// Schedule inspects a completed execution and, when it failed retryably with
// budget left, increments retry_count and stamps next_retry_at with
// exponential backoff. Returns whether a retry was scheduled.
func (m *RetryManager) Schedule(ctx context.Context, exec *model.OrderExecution) (bool, error) {
	if exec.Status != model.ExecutionFailed || !exec.Retryable {
		return false, nil
	}
	if exec.RetryCount >= exec.MaxRetries {
		return false, nil
	}

	exec.RetryCount++
	at := m.now().Add(Backoff(m.baseDelay, m.maxDelay, exec.RetryCount))
	exec.NextRetryAt = &at

	if err := m.store.SaveExecution(ctx, exec); err != nil {
		return false, fmt.Errorf("scheduling retry: %w", err)
	}
	m.log.Info().
		Str("execution_id", exec.ID.String()).
		Int("retry_count", exec.RetryCount).
		Int("max_retries", exec.MaxRetries).
		Time("next_retry_at", at).
		Msg("retry scheduled")
	return true, nil
}

// Backoff computes min(base * 2^attempt, max).
func Backoff(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
