package collections

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/openintent-ai/openintent/internal/ssrf"
	"github.com/openintent-ai/openintent/pkg/model"
	"github.com/openintent-ai/openintent/pkg/store"
)

// SubscriptionService manages standing subscriptions and delivers
// matching events to their webhook_url, adapted from the teacher's
// effect-outbox pattern: schedule on write, sweep pending, mark done.
type SubscriptionService struct {
	store      *store.Store
	httpClient *http.Client
}

// NewSubscriptionService builds a SubscriptionService.
func NewSubscriptionService(st *store.Store) *SubscriptionService {
	return &SubscriptionService{store: st, httpClient: &http.Client{Timeout: 10 * time.Second}}
}

// Subscribe records a standing subscription, validating webhook_url
// against SSRF targets up front so a bad URL fails at creation time
// rather than on every delivery attempt.
func (s *SubscriptionService) Subscribe(ctx context.Context, intentID, subscriberID string, eventTypes []string, webhookURL string, expiresAt *time.Time) (*model.IntentSubscription, error) {
	if webhookURL != "" {
		if err := ssrf.CheckURL(webhookURL); err != nil {
			return nil, fmt.Errorf("collections: subscription webhook_url rejected: %w", err)
		}
	}
	sub := &model.IntentSubscription{
		ID:           uuid.NewString(),
		IntentID:     intentID,
		SubscriberID: subscriberID,
		EventTypes:   eventTypes,
		WebhookURL:   webhookURL,
		ExpiresAt:    expiresAt,
	}
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("collections: subscribe: %w", err)
	}
	return sub, nil
}

// List returns the live subscriptions for an intent.
func (s *SubscriptionService) List(ctx context.Context, intentID string) ([]*model.IntentSubscription, error) {
	return s.store.ListSubscriptions(ctx, intentID)
}

// Deliver fans ev out to every subscription on its intent whose
// event_types include ev.EventType and whose webhook_url is set,
// posting the event as JSON. Delivery failures are logged by the
// caller; a standing subscription is not retried the way federation
// dispatch is, matching spec.md §4.8's "best-effort" framing.
func (s *SubscriptionService) Deliver(ctx context.Context, ev *model.IntentEvent) error {
	subs, err := s.store.ListSubscriptions(ctx, ev.IntentID)
	if err != nil {
		return fmt.Errorf("collections: deliver: load subscriptions: %w", err)
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("collections: deliver: marshal event: %w", err)
	}
	var errs []error
	for _, sub := range subs {
		if sub.WebhookURL == "" || !matchesEventType(sub.EventTypes, ev.EventType) {
			continue
		}
		if err := s.post(ctx, sub.WebhookURL, body); err != nil {
			errs = append(errs, fmt.Errorf("collections: deliver to %s: %w", sub.SubscriberID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *SubscriptionService) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook post %s: status %d", url, resp.StatusCode)
	}
	return nil
}

func matchesEventType(types []string, eventType model.EventType) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if t == string(eventType) || t == "*" {
			return true
		}
	}
	return false
}

// SweepExpired removes subscriptions past their expires_at, mirroring
// the lease sweeper's periodic background cleanup (spec.md §2).
func (s *SubscriptionService) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.store.DeleteExpiredSubscriptions(ctx, now)
}
