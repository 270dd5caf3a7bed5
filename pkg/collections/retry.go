package collections

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openintent-ai/openintent/pkg/model"
	"github.com/openintent-ai/openintent/pkg/store"
)

// RetryService manages an intent's retry policy and failure history,
// deciding whether a new attempt should be scheduled or the fallback
// agent engaged once FailureThreshold is crossed (spec.md §4.8).
type RetryService struct {
	store *store.Store
}

// NewRetryService builds a RetryService.
func NewRetryService(st *store.Store) *RetryService {
	return &RetryService{store: st}
}

// SetPolicy upserts an intent's retry configuration.
func (s *RetryService) SetPolicy(ctx context.Context, p *model.RetryPolicy) error {
	return s.store.SetRetryPolicy(ctx, p)
}

// Policy fetches an intent's retry policy, defaulting to RetryNone.
func (s *RetryService) Policy(ctx context.Context, intentID string) (*model.RetryPolicy, error) {
	return s.store.GetRetryPolicy(ctx, intentID)
}

// Outcome is the RetryService's decision after recording a failure.
type Outcome struct {
	ScheduleRetryAt *time.Time
	FallbackAgentID string
	ThresholdHit    bool
}

// RecordFailure appends a failure record, then consults the intent's
// retry policy to decide whether another attempt should be scheduled
// or the failure threshold has been crossed.
func (s *RetryService) RecordFailure(ctx context.Context, intentID, agentID string, attemptNumber int, errorCode, errorMessage, actor string, now time.Time) (Outcome, error) {
	policy, err := s.store.GetRetryPolicy(ctx, intentID)
	if err != nil {
		return Outcome{}, fmt.Errorf("collections: load retry policy: %w", err)
	}

	var scheduleAt *time.Time
	if policy.Strategy != model.RetryNone && attemptNumber <= policy.MaxRetries {
		delay := backoffDelay(policy, attemptNumber)
		t := now.Add(delay)
		scheduleAt = &t
	}

	f := &model.IntentFailure{
		ID:               uuid.NewString(),
		IntentID:         intentID,
		AgentID:          agentID,
		AttemptNumber:    attemptNumber,
		ErrorCode:        errorCode,
		ErrorMessage:     errorMessage,
		RetryScheduledAt: scheduleAt,
		Metadata:         map[string]any{},
		CreatedAt:        now,
	}
	if err := s.store.RecordFailure(ctx, f); err != nil {
		return Outcome{}, fmt.Errorf("collections: record failure: %w", err)
	}
	if err := s.store.AppendEventAuto(ctx, store.NewEvent(uuid.NewString(), intentID, model.EventFailureRecorded, actor,
		map[string]any{"failure_id": f.ID, "attempt_number": attemptNumber, "error_code": errorCode}, now)); err != nil {
		return Outcome{}, fmt.Errorf("collections: record failure event: %w", err)
	}

	total, err := s.store.CountFailures(ctx, intentID)
	if err != nil {
		return Outcome{}, fmt.Errorf("collections: count failures: %w", err)
	}
	if policy.FailureThreshold > 0 && total >= policy.FailureThreshold {
		return Outcome{ThresholdHit: true, FallbackAgentID: policy.FallbackAgentID}, nil
	}
	return Outcome{ScheduleRetryAt: scheduleAt}, nil
}

// List returns every failure record for an intent.
func (s *RetryService) List(ctx context.Context, intentID string) ([]*model.IntentFailure, error) {
	return s.store.ListFailures(ctx, intentID)
}

func backoffDelay(p *model.RetryPolicy, attempt int) time.Duration {
	base := time.Duration(p.BaseDelayMs) * time.Millisecond
	max := time.Duration(p.MaxDelayMs) * time.Millisecond
	var d time.Duration
	switch p.Strategy {
	case model.RetryFixed:
		d = base
	case model.RetryLinear:
		d = base * time.Duration(attempt)
	case model.RetryExponential:
		d = base
		for i := 1; i < attempt; i++ {
			d *= 2
		}
	default:
		d = base
	}
	if max > 0 && d > max {
		d = max
	}
	return d
}
