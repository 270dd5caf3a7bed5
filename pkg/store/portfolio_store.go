package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openintent-ai/openintent/pkg/model"
)

func scanPortfolio(row interface{ Scan(dest ...any) error }) (*model.Portfolio, error) {
	var p model.Portfolio
	var status, policy string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedBy, &status, &policy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan portfolio: %w", err)
	}
	p.Status = model.PortfolioStatus(status)
	if err := unmarshalJSON(policy, &p.GovernancePolicy); err != nil {
		return nil, fmt.Errorf("store: decode portfolio policy: %w", err)
	}
	return &p, nil
}

const portfolioColumns = `id, name, description, created_by, status, governance_policy, created_at, updated_at`

// CreatePortfolio inserts a new portfolio.
func (s *Store) CreatePortfolio(ctx context.Context, p *model.Portfolio) error {
	policy, err := marshalJSON(p.GovernancePolicy)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, nil, `
		INSERT INTO portfolios (id, name, description, created_by, status, governance_policy, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.Name, p.Description, p.CreatedBy, string(p.Status), policy, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create portfolio: %w", err)
	}
	return nil
}

// GetPortfolio fetches one portfolio by id.
func (s *Store) GetPortfolio(ctx context.Context, id string) (*model.Portfolio, error) {
	return scanPortfolio(s.queryRow(ctx, nil, `SELECT `+portfolioColumns+` FROM portfolios WHERE id = $1`, id))
}

// ListPortfolios returns every portfolio, newest first.
func (s *Store) ListPortfolios(ctx context.Context) ([]*model.Portfolio, error) {
	rows, err := s.query(ctx, nil, `SELECT `+portfolioColumns+` FROM portfolios ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list portfolios: %w", err)
	}
	defer rows.Close()
	var out []*model.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetPortfolioStatus transitions a portfolio's lifecycle status. Its one
// caller is the cascade-completion supplement (SPEC_FULL §12); the API
// has no operation that sets a portfolio's status directly.
func (s *Store) SetPortfolioStatus(ctx context.Context, id string, status model.PortfolioStatus, now time.Time) error {
	res, err := s.exec(ctx, nil, `UPDATE portfolios SET status = $1, updated_at = $2 WHERE id = $3`, string(status), now, id)
	if err != nil {
		return fmt.Errorf("store: set portfolio status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddPortfolioMember links an intent into a portfolio.
func (s *Store) AddPortfolioMember(ctx context.Context, m *model.PortfolioMembership) error {
	_, err := s.exec(ctx, nil, `
		INSERT INTO portfolio_memberships (id, portfolio_id, intent_id, role, priority, added_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		m.ID, m.PortfolioID, m.IntentID, string(m.Role), m.Priority, m.AddedAt)
	if err != nil {
		return fmt.Errorf("store: add portfolio member: %w", err)
	}
	return nil
}

// ListMembers returns every membership row for a portfolio.
func (s *Store) ListMembers(ctx context.Context, portfolioID string) ([]*model.PortfolioMembership, error) {
	rows, err := s.query(ctx, nil, `
		SELECT id, portfolio_id, intent_id, role, priority, added_at
		FROM portfolio_memberships WHERE portfolio_id = $1 ORDER BY priority DESC, added_at ASC`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("store: list members: %w", err)
	}
	defer rows.Close()
	var out []*model.PortfolioMembership
	for rows.Next() {
		var m model.PortfolioMembership
		var role string
		if err := rows.Scan(&m.ID, &m.PortfolioID, &m.IntentID, &role, &m.Priority, &m.AddedAt); err != nil {
			return nil, fmt.Errorf("store: scan membership: %w", err)
		}
		m.Role = model.MembershipRole(role)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// MemberIntentStatuses returns the Status of every intent that is a
// member of portfolioID, used for both the aggregate-status view and
// the cascade-completion check.
func (s *Store) MemberIntentStatuses(ctx context.Context, portfolioID string) ([]model.Status, error) {
	rows, err := s.query(ctx, nil, `
		SELECT i.status FROM intents i
		JOIN portfolio_memberships m ON m.intent_id = i.id
		WHERE m.portfolio_id = $1`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("store: member statuses: %w", err)
	}
	defer rows.Close()
	var out []model.Status
	for rows.Next() {
		var st string
		if err := rows.Scan(&st); err != nil {
			return nil, fmt.Errorf("store: scan member status: %w", err)
		}
		out = append(out, model.Status(st))
	}
	return out, rows.Err()
}

// PortfoliosForIntent returns the portfolios an intent belongs to, used
// to trigger the cascade check when that intent completes.
func (s *Store) PortfoliosForIntent(ctx context.Context, intentID string) ([]string, error) {
	rows, err := s.query(ctx, nil, `SELECT portfolio_id FROM portfolio_memberships WHERE intent_id = $1`, intentID)
	if err != nil {
		return nil, fmt.Errorf("store: portfolios for intent: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan portfolio id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
