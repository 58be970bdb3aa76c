package engine

import (
	"context"
	"testing"
	"time"

	"reorder/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestBackoff(t *testing.T) {
	base := 1 * time.Minute
	max := 1 * time.Hour

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Minute},
		{1, 2 * time.Minute},
		{2, 4 * time.Minute},
		{3, 8 * time.Minute},
		{6, 1 * time.Hour},
		{20, 1 * time.Hour},
	}

	for _, tt := range tests {
		if got := Backoff(base, max, tt.attempt); got != tt.want {
			t.Fatalf("Backoff(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryManagerSchedule(t *testing.T) {
	now := date(2025, time.June, 1)

	tests := []struct {
		name          string
		exec          model.OrderExecution
		wantScheduled bool
		wantCount     int
		wantRetryAt   time.Time
	}{
		{
			name:          "first retry",
			exec:          model.OrderExecution{Status: model.ExecutionFailed, Retryable: true, MaxRetries: 3},
			wantScheduled: true,
			wantCount:     1,
			wantRetryAt:   now.Add(2 * time.Minute),
		},
		{
			name:          "second retry backs off further",
			exec:          model.OrderExecution{Status: model.ExecutionFailed, Retryable: true, RetryCount: 1, MaxRetries: 3},
			wantScheduled: true,
			wantCount:     2,
			wantRetryAt:   now.Add(4 * time.Minute),
		},
		{
			name:      "budget exhausted",
			exec:      model.OrderExecution{Status: model.ExecutionFailed, Retryable: true, RetryCount: 3, MaxRetries: 3},
			wantCount: 3,
		},
		{
			name:      "non-retryable failure",
			exec:      model.OrderExecution{Status: model.ExecutionFailed, Retryable: false, MaxRetries: 3},
			wantCount: 0,
		},
		{
			name:      "success is never rescheduled",
			exec:      model.OrderExecution{Status: model.ExecutionSuccess, Retryable: true, MaxRetries: 3},
			wantCount: 0,
		},
		{
			name:      "pending approval is never rescheduled",
			exec:      model.OrderExecution{Status: model.ExecutionPending, ApprovalState: model.ApprovalRequired, MaxRetries: 3},
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			m := NewRetryManager(store, zerolog.Nop()).WithClock(func() time.Time { return now })
			exec := tt.exec
			exec.ID = uuid.New()
			exec.RecurringOrderID = uuid.New()

			scheduled, err := m.Schedule(context.Background(), &exec)
			if err != nil {
				t.Fatalf("Schedule() error = %v", err)
			}
			if scheduled != tt.wantScheduled {
				t.Fatalf("scheduled = %v, want %v", scheduled, tt.wantScheduled)
			}
			if exec.RetryCount != tt.wantCount {
				t.Fatalf("retry count = %d, want %d", exec.RetryCount, tt.wantCount)
			}
			if tt.wantScheduled {
				if exec.NextRetryAt == nil || !exec.NextRetryAt.Equal(tt.wantRetryAt) {
					t.Fatalf("next retry at = %v, want %v", exec.NextRetryAt, tt.wantRetryAt)
				}
			} else if exec.NextRetryAt != nil {
				t.Fatalf("next retry at = %v, want nil", exec.NextRetryAt)
			}
		})
	}
}

func TestRetryManagerNeverExceedsBudget(t *testing.T) {
	now := date(2025, time.June, 1)
	store := newFakeStore()
	m := NewRetryManager(store, zerolog.Nop()).WithClock(func() time.Time { return now })

	exec := &model.OrderExecution{
		ID:               uuid.New(),
		RecurringOrderID: uuid.New(),
		Status:           model.ExecutionFailed,
		Retryable:        true,
		MaxRetries:       3,
	}
	for i := 0; i < 10; i++ {
		if _, err := m.Schedule(context.Background(), exec); err != nil {
			t.Fatalf("Schedule() error = %v", err)
		}
	}
	if exec.RetryCount != 3 {
		t.Fatalf("retry count = %d, want capped at 3", exec.RetryCount)
	}
}
