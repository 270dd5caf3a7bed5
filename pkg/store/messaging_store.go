package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/openintent-ai/openintent/pkg/model"
)

func scanChannel(row interface{ Scan(dest ...any) error }) (*model.Channel, error) {
	var c model.Channel
	var members, status, options string
	if err := row.Scan(&c.ID, &c.IntentID, &c.Name, &members, &status, &options,
		&c.MessageCount, &c.LastMessageAt, &c.TaskID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan channel: %w", err)
	}
	c.Status = model.ChannelStatus(status)
	if err := unmarshalJSON(members, &c.Members); err != nil {
		return nil, fmt.Errorf("store: decode channel members: %w", err)
	}
	if err := unmarshalJSON(options, &c.Options); err != nil {
		return nil, fmt.Errorf("store: decode channel options: %w", err)
	}
	return &c, nil
}

const channelColumns = `id, intent_id, name, members, status, options, message_count, last_message_at, task_id`

// CreateChannel inserts a new open channel.
func (s *Store) CreateChannel(ctx context.Context, c *model.Channel) error {
	members, err := marshalJSON(c.Members)
	if err != nil {
		return err
	}
	options, err := marshalJSON(c.Options)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, nil, `
		INSERT INTO channels (id, intent_id, name, members, status, options, message_count, last_message_at, task_id)
		VALUES ($1,$2,$3,$4,$5,$6,0,NULL,$7)`,
		c.ID, c.IntentID, c.Name, members, string(c.Status), options, c.TaskID)
	if err != nil {
		return fmt.Errorf("store: create channel: %w", err)
	}
	return nil
}

// GetChannel fetches one channel by id.
func (s *Store) GetChannel(ctx context.Context, id string) (*model.Channel, error) {
	return scanChannel(s.queryRow(ctx, nil, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, id))
}

// ListChannels returns every channel scoped to an intent.
func (s *Store) ListChannels(ctx context.Context, intentID string) ([]*model.Channel, error) {
	rows, err := s.query(ctx, nil, `SELECT `+channelColumns+` FROM channels WHERE intent_id = $1`, intentID)
	if err != nil {
		return nil, fmt.Errorf("store: list channels: %w", err)
	}
	defer rows.Close()
	var out []*model.Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CloseChannel marks a channel closed; further PostMessage calls fail
// with ErrChannelClosed.
func (s *Store) CloseChannel(ctx context.Context, id string) error {
	res, err := s.exec(ctx, nil, `UPDATE channels SET status = $1 WHERE id = $2`, string(model.ChannelClosed), id)
	if err != nil {
		return fmt.Errorf("store: close channel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PostMessage appends a message to a channel and bumps its counters,
// rejecting posts to a closed channel.
func (s *Store) PostMessage(ctx context.Context, m *model.Message) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		c, err := scanChannel(s.queryRow(ctx, tx, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, m.ChannelID))
		if err != nil {
			return err
		}
		if c.Status == model.ChannelClosed {
			return ErrChannelClosed
		}
		payload, err := marshalJSON(m.Payload)
		if err != nil {
			return err
		}
		metadata, err := marshalJSON(m.Metadata)
		if err != nil {
			return err
		}
		_, err = s.exec(ctx, tx, `
			INSERT INTO messages (id, channel_id, sender, recipient, message_type, payload, status, correlation_id, metadata, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			m.ID, m.ChannelID, m.Sender, m.To, string(m.MessageType), payload, string(m.Status), m.CorrelationID, metadata, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("store: post message: %w", err)
		}
		_, err = s.exec(ctx, tx, `UPDATE channels SET message_count = message_count + 1, last_message_at = $1 WHERE id = $2`,
			m.CreatedAt, m.ChannelID)
		if err != nil {
			return fmt.Errorf("store: bump channel counters: %w", err)
		}
		return nil
	})
}

// ListMessages returns a channel's messages in order, optionally
// filtered to those correlating to a given request (reply_to).
func (s *Store) ListMessages(ctx context.Context, channelID string, correlationID string, limit int) ([]*model.Message, error) {
	query := `SELECT id, channel_id, sender, recipient, message_type, payload, status, correlation_id, metadata, created_at
		FROM messages WHERE channel_id = $1`
	args := []any{channelID}
	if correlationID != "" {
		query += ` AND correlation_id = $2`
		args = append(args, correlationID)
	}
	query += ` ORDER BY created_at ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.query(ctx, nil, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()
	var out []*model.Message
	for rows.Next() {
		var m model.Message
		var msgType, status, payload, metadata string
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.Sender, &m.To, &msgType, &payload, &status,
			&m.CorrelationID, &metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		m.MessageType = model.MessageType(msgType)
		m.Status = model.MessageStatus(status)
		if err := unmarshalJSON(payload, &m.Payload); err != nil {
			return nil, fmt.Errorf("store: decode message payload: %w", err)
		}
		if err := unmarshalJSON(metadata, &m.Metadata); err != nil {
			return nil, fmt.Errorf("store: decode message metadata: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
