package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openintent-ai/openintent/pkg/model"
)

// AppendEvent inserts an event inside tx, assigning it the next sequence
// number for its intent. Callers in this repository reach it through
// AppendEventAuto, so the event is written in its own transaction after
// the mutation it describes has committed.
func (s *Store) AppendEvent(ctx context.Context, tx *sql.Tx, ev *model.IntentEvent) error {
	payload, err := marshalJSON(ev.Payload)
	if err != nil {
		return err
	}
	row := s.queryRow(ctx, tx, `SELECT COALESCE(MAX(sequence), 0) + 1 FROM intent_events WHERE intent_id = $1`, ev.IntentID)
	if err := row.Scan(&ev.Sequence); err != nil {
		return fmt.Errorf("store: next sequence: %w", err)
	}
	_, err = s.exec(ctx, tx, `
		INSERT INTO intent_events (id, intent_id, sequence, event_type, actor, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		ev.ID, ev.IntentID, ev.Sequence, string(ev.EventType), ev.Actor, payload, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: append event: %w", err)
	}
	return nil
}

// WithTx exposes the transaction wrapper to callers outside this package.
// No caller in this repository uses it; intentcore records events with
// AppendEventAuto after each write.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.withTx(ctx, fn)
}

// AppendEventAuto appends ev in its own transaction, for callers that
// already committed the mutation it describes and only need the event
// recorded as a second, immediately-following write.
func (s *Store) AppendEventAuto(ctx context.Context, ev *model.IntentEvent) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.AppendEvent(ctx, tx, ev)
	})
}

func scanEvent(row interface{ Scan(dest ...any) error }) (*model.IntentEvent, error) {
	var ev model.IntentEvent
	var eventType, payload string
	if err := row.Scan(&ev.ID, &ev.IntentID, &ev.Sequence, &eventType, &ev.Actor, &payload, &ev.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan event: %w", err)
	}
	ev.EventType = model.EventType(eventType)
	if err := unmarshalJSON(payload, &ev.Payload); err != nil {
		return nil, fmt.Errorf("store: decode event payload: %w", err)
	}
	return &ev, nil
}

// EventFilter narrows ListEvents.
type EventFilter struct {
	EventType  *model.EventType
	SinceSeq   int64
	Limit      int
}

// ListEvents returns an intent's event log in sequence order.
func (s *Store) ListEvents(ctx context.Context, intentID string, f EventFilter) ([]*model.IntentEvent, error) {
	query := `SELECT id, intent_id, sequence, event_type, actor, payload, created_at
		FROM intent_events WHERE intent_id = $1 AND sequence > $2`
	args := []any{intentID, f.SinceSeq}
	n := 2
	if f.EventType != nil {
		n++
		query += fmt.Sprintf(" AND event_type = $%d", n)
		args = append(args, string(*f.EventType))
	}
	query += " ORDER BY sequence ASC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	rows, err := s.query(ctx, nil, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	defer rows.Close()

	var out []*model.IntentEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// LatestSequence returns the highest sequence number recorded for an
// intent, or 0 if it has no events yet (used for SSE Last-Event-ID resume).
func (s *Store) LatestSequence(ctx context.Context, intentID string) (int64, error) {
	row := s.queryRow(ctx, nil, `SELECT COALESCE(MAX(sequence), 0) FROM intent_events WHERE intent_id = $1`, intentID)
	var seq int64
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("store: latest sequence: %w", err)
	}
	return seq, nil
}

// NewEvent is a small constructor helper so callers don't repeat the
// timestamp/id wiring at every call site.
func NewEvent(id, intentID string, eventType model.EventType, actor string, payload map[string]any, now time.Time) *model.IntentEvent {
	return &model.IntentEvent{
		ID:        id,
		IntentID:  intentID,
		EventType: eventType,
		Actor:     actor,
		Payload:   payload,
		CreatedAt: now,
	}
}
