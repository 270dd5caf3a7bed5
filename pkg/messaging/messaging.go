// Package messaging implements intent-scoped channels and the
// request/response correlation agents use to coordinate (spec.md §4.7).
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openintent-ai/openintent/pkg/model"
	"github.com/openintent-ai/openintent/pkg/store"
)

// Service wraps the store's channel/message primitives with event
// emission for the per-intent audit log.
type Service struct {
	store *store.Store
}

// New builds a Service.
func New(st *store.Store) *Service {
	return &Service{store: st}
}

// OpenChannel creates a new open channel scoped to an intent.
func (s *Service) OpenChannel(ctx context.Context, intentID, name string, members []string, options map[string]any, taskID *string) (*model.Channel, error) {
	c := &model.Channel{
		ID:       uuid.NewString(),
		IntentID: intentID,
		Name:     name,
		Members:  members,
		Status:   model.ChannelOpen,
		Options:  options,
		TaskID:   taskID,
	}
	if err := s.store.CreateChannel(ctx, c); err != nil {
		return nil, fmt.Errorf("messaging: open channel: %w", err)
	}
	return c, nil
}

// Get fetches one channel by id.
func (s *Service) Get(ctx context.Context, id string) (*model.Channel, error) {
	return s.store.GetChannel(ctx, id)
}

// List returns every channel scoped to an intent.
func (s *Service) List(ctx context.Context, intentID string) ([]*model.Channel, error) {
	return s.store.ListChannels(ctx, intentID)
}

// Close closes a channel; further posts fail with store.ErrChannelClosed.
func (s *Service) Close(ctx context.Context, id string) error {
	return s.store.CloseChannel(ctx, id)
}

// Post appends a message to a channel and records it on the owning
// intent's event log. replyTo, if set, correlates this message as the
// response to an earlier request's CorrelationID.
func (s *Service) Post(ctx context.Context, channelID, sender, to string, msgType model.MessageType, payload map[string]any, replyTo string, now time.Time) (*model.Message, error) {
	c, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("messaging: load channel: %w", err)
	}
	m := &model.Message{
		ID:            uuid.NewString(),
		ChannelID:     channelID,
		Sender:        sender,
		To:            to,
		MessageType:   msgType,
		Payload:       payload,
		Status:        model.MessageDelivered,
		CorrelationID: replyTo,
		Metadata:      map[string]any{},
		CreatedAt:     now,
	}
	if m.CorrelationID == "" && msgType == model.MessageRequest {
		m.CorrelationID = m.ID
	}
	if err := s.store.PostMessage(ctx, m); err != nil {
		return nil, fmt.Errorf("messaging: post: %w", err)
	}
	if err := s.store.AppendEventAuto(ctx, store.NewEvent(uuid.NewString(), c.IntentID, model.EventMessageSent, sender,
		map[string]any{"channel_id": channelID, "message_id": m.ID, "message_type": string(msgType), "to": to}, now)); err != nil {
		return nil, fmt.Errorf("messaging: record event: %w", err)
	}
	return m, nil
}

// Messages returns a channel's messages, optionally filtered to one
// request/response correlation thread.
func (s *Service) Messages(ctx context.Context, channelID, correlationID string, limit int) ([]*model.Message, error) {
	return s.store.ListMessages(ctx, channelID, correlationID, limit)
}
