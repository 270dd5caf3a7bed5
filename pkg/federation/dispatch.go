package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/openintent-ai/openintent/internal/ssrf"
	"github.com/openintent-ai/openintent/pkg/model"
	"github.com/openintent-ai/openintent/pkg/store"
	"github.com/openintent-ai/openintent/pkg/telemetry"
)

// defaultMaxRetries matches spec.md §4.9's "typically 3".
const defaultMaxRetries = 3

// Dispatcher sends signed envelopes to peer servers and tracks their
// delivery in the store, retrying failed attempts with exponential
// backoff (spec.md §4.9, §5 "Backpressure").
type Dispatcher struct {
	store      *store.Store
	signer     *Signer
	identity   *model.ServerIdentity
	httpClient *http.Client
	maxRetries int
}

// NewDispatcher builds a Dispatcher bound to this server's identity.
func NewDispatcher(st *store.Store, identity *model.ServerIdentity) *Dispatcher {
	return &Dispatcher{
		store:      st,
		signer:     NewSigner(identity),
		identity:   identity,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		maxRetries: defaultMaxRetries,
	}
}

// Request describes an outbound dispatch (spec.md §4.9 POST /federation/dispatch body).
type Request struct {
	IntentID          string
	IntentTitle       string
	IntentDescription string
	IntentState       map[string]any
	IntentConstraints map[string]any
	TargetServer      string
	AgentID           string
	DelegationScope   *model.DelegationScope
	FederationPolicy  *model.FederationPolicy
	CallbackURL       string
	TraceContext      string
}

// Dispatch builds, signs and sends an envelope, recording the outcome.
// It blocks through the full retry sequence; callers that want
// fire-and-forget semantics should run it in a goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*model.FederationDispatch, error) {
	if err := ssrf.CheckURL(req.TargetServer); err != nil {
		return nil, fmt.Errorf("federation: dispatch target rejected: %w", err)
	}
	if req.CallbackURL != "" {
		if err := ssrf.CheckURL(req.CallbackURL); err != nil {
			return nil, fmt.Errorf("federation: dispatch callback_url rejected: %w", err)
		}
	}

	now := time.Now()
	envelope := &model.FederationEnvelope{
		DispatchID:        uuid.NewString(),
		SourceServer:      d.identity.DID,
		TargetServer:      req.TargetServer,
		IntentID:          req.IntentID,
		IntentTitle:       req.IntentTitle,
		IntentDescription: req.IntentDescription,
		IntentState:       req.IntentState,
		IntentConstraints: req.IntentConstraints,
		AgentID:           req.AgentID,
		DelegationScope:   req.DelegationScope,
		FederationPolicy:  req.FederationPolicy,
		TraceContext:      req.TraceContext,
		CallbackURL:       req.CallbackURL,
		IdempotencyKey:    uuid.NewString(),
		CreatedAt:         now,
	}
	if err := d.signer.SignEnvelope(envelope); err != nil {
		return nil, fmt.Errorf("federation: sign envelope: %w", err)
	}

	dispatch := &model.FederationDispatch{
		DispatchID:   envelope.DispatchID,
		TargetServer: req.TargetServer,
		IntentID:     req.IntentID,
		Status:       model.DispatchActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.store.CreateDispatch(ctx, dispatch); err != nil {
		return nil, fmt.Errorf("federation: record dispatch: %w", err)
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("federation: marshal envelope: %w", err)
	}

	if err := d.store.AppendEventAuto(ctx, store.NewEvent(uuid.NewString(), req.IntentID, model.EventFederationDispatched, req.AgentID,
		map[string]any{"dispatch_id": dispatch.DispatchID, "target_server": req.TargetServer}, now)); err != nil {
		return nil, fmt.Errorf("federation: record dispatched event: %w", err)
	}

	lastErr := d.sendWithRetry(ctx, req.TargetServer+"/federation/receive", body)
	resultTime := time.Now()
	if lastErr == nil {
		telemetry.FederationDispatchesTotal.WithLabelValues("delivered").Inc()
		if err := d.store.UpdateDispatchStatus(ctx, dispatch.DispatchID, model.DispatchDelivered, "", resultTime); err != nil {
			return nil, fmt.Errorf("federation: update dispatch status: %w", err)
		}
		if err := d.store.AppendEventAuto(ctx, store.NewEvent(uuid.NewString(), req.IntentID, model.EventFederationDelivered, req.AgentID,
			map[string]any{"dispatch_id": dispatch.DispatchID, "target_server": req.TargetServer}, resultTime)); err != nil {
			return nil, fmt.Errorf("federation: record delivered event: %w", err)
		}
		dispatch.Status = model.DispatchDelivered
		return dispatch, nil
	}

	telemetry.FederationDispatchesTotal.WithLabelValues("failed").Inc()
	if err := d.store.UpdateDispatchStatus(ctx, dispatch.DispatchID, model.DispatchFailed, lastErr.Error(), resultTime); err != nil {
		return nil, fmt.Errorf("federation: update dispatch status: %w", err)
	}
	if err := d.store.AppendEventAuto(ctx, store.NewEvent(uuid.NewString(), req.IntentID, model.EventFederationFailed, req.AgentID,
		map[string]any{"dispatch_id": dispatch.DispatchID, "target_server": req.TargetServer, "error": lastErr.Error()}, resultTime)); err != nil {
		return nil, fmt.Errorf("federation: record failed event: %w", err)
	}
	dispatch.Status = model.DispatchFailed
	dispatch.LastError = lastErr.Error()
	return dispatch, fmt.Errorf("federation: dispatch exhausted retries: %w", lastErr)
}

// sendWithRetry posts body to url, retrying non-2xx/transport failures
// with the pack's standard exponential backoff (1s -> 60s, x2, ±20%
// jitter) up to maxRetries times after the first attempt.
func (d *Dispatcher) sendWithRetry(ctx context.Context, url string, body []byte) error {
	bo := newRetryBackoff()
	var lastErr error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(bo.NextBackOff()):
			}
		}
		if err := d.postOnce(ctx, url, body); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func (d *Dispatcher) postOnce(ctx context.Context, url string, body []byte) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("post %s: status %d: %s", url, resp.StatusCode, respBody)
	}
	return nil
}

// newRetryBackoff matches leapmux's worker reconnect policy: 1s initial,
// 60s cap, 2x multiplier, 20% jitter.
func newRetryBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 60 * time.Second
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}
