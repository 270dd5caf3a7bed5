package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openintent-ai/openintent/pkg/model"
)

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("store: marshal: %w", err)
	}
	return string(b), nil
}

func unmarshalJSON[T any](raw string, out *T) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}

// CreateIntent inserts a new intent at version 1.
func (s *Store) CreateIntent(ctx context.Context, in *model.Intent) error {
	dependsOn, err := marshalJSON(in.DependsOn)
	if err != nil {
		return err
	}
	constraints, err := marshalJSON(in.Constraints)
	if err != nil {
		return err
	}
	state, err := marshalJSON(in.State)
	if err != nil {
		return err
	}
	policy, err := marshalJSON(in.GovernancePolicy)
	if err != nil {
		return err
	}

	_, err = s.exec(ctx, nil, `
		INSERT INTO intents
			(id, title, description, created_by, parent_intent_id, depends_on,
			 constraints, state, status, confidence, version, created_at,
			 updated_at, governance_policy)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		in.ID, in.Title, in.Description, in.CreatedBy, in.ParentIntentID, dependsOn,
		constraints, state, string(in.Status), in.Confidence, in.Version, in.CreatedAt,
		in.UpdatedAt, policy)
	if err != nil {
		return fmt.Errorf("store: create intent: %w", err)
	}
	return nil
}

func scanIntent(row interface {
	Scan(dest ...any) error
}) (*model.Intent, error) {
	var in model.Intent
	var dependsOn, constraints, state, policy string
	var status string
	err := row.Scan(&in.ID, &in.Title, &in.Description, &in.CreatedBy, &in.ParentIntentID,
		&dependsOn, &constraints, &state, &status, &in.Confidence, &in.Version,
		&in.CreatedAt, &in.UpdatedAt, &policy)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan intent: %w", err)
	}
	in.Status = model.Status(status)
	if err := unmarshalJSON(dependsOn, &in.DependsOn); err != nil {
		return nil, fmt.Errorf("store: decode depends_on: %w", err)
	}
	if err := unmarshalJSON(constraints, &in.Constraints); err != nil {
		return nil, fmt.Errorf("store: decode constraints: %w", err)
	}
	if err := unmarshalJSON(state, &in.State); err != nil {
		return nil, fmt.Errorf("store: decode state: %w", err)
	}
	if err := unmarshalJSON(policy, &in.GovernancePolicy); err != nil {
		return nil, fmt.Errorf("store: decode governance_policy: %w", err)
	}
	return &in, nil
}

const intentColumns = `id, title, description, created_by, parent_intent_id, depends_on,
	constraints, state, status, confidence, version, created_at, updated_at, governance_policy`

// GetIntent fetches one intent by id.
func (s *Store) GetIntent(ctx context.Context, id string) (*model.Intent, error) {
	row := s.queryRow(ctx, nil, `SELECT `+intentColumns+` FROM intents WHERE id = $1`, id)
	return scanIntent(row)
}

// ListIntentsFilter narrows ListIntents.
type ListIntentsFilter struct {
	Status         *model.Status
	CreatedBy      string
	ParentIntentID *string
	Limit          int
	Offset         int
}

// ListIntents returns intents matching filter, newest first.
func (s *Store) ListIntents(ctx context.Context, f ListIntentsFilter) ([]*model.Intent, error) {
	query := `SELECT ` + intentColumns + ` FROM intents WHERE 1=1`
	var args []any
	n := 0
	next := func() int { n++; return n }
	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", next())
		args = append(args, string(*f.Status))
	}
	if f.CreatedBy != "" {
		query += fmt.Sprintf(" AND created_by = $%d", next())
		args = append(args, f.CreatedBy)
	}
	if f.ParentIntentID != nil {
		query += fmt.Sprintf(" AND parent_intent_id = $%d", next())
		args = append(args, *f.ParentIntentID)
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", f.Offset)
	}

	rows, err := s.query(ctx, nil, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list intents: %w", err)
	}
	defer rows.Close()

	var out []*model.Intent
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// PatchState applies an already-computed new state tree to an intent
// under optimistic concurrency: the update only lands if version still
// equals expectedVersion, per spec.md §4.1's If-Match semantics.
func (s *Store) PatchState(ctx context.Context, id string, expectedVersion int64, newState map[string]any, now time.Time) (*model.Intent, error) {
	stateJSON, err := marshalJSON(newState)
	if err != nil {
		return nil, err
	}
	var updated *model.Intent
	selectQuery := `SELECT ` + intentColumns + ` FROM intents WHERE id = $1`
	if s.dialect == DialectPostgres {
		selectQuery += ` FOR UPDATE`
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanIntent(s.queryRow(ctx, tx, selectQuery, id))
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return &VersionConflictError{CurrentVersion: current.Version}
		}
		res, err := s.exec(ctx, tx, `
			UPDATE intents SET state = $1, version = version + 1, updated_at = $2
			WHERE id = $3 AND version = $4`,
			stateJSON, now, id, expectedVersion)
		if err != nil {
			return fmt.Errorf("store: patch state: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &VersionConflictError{CurrentVersion: current.Version}
		}
		current.State = newState
		current.Version = expectedVersion + 1
		current.UpdatedAt = now
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetStatus transitions status under the same CAS discipline as PatchState.
func (s *Store) SetStatus(ctx context.Context, id string, expectedVersion int64, status model.Status, now time.Time) (*model.Intent, error) {
	var updated *model.Intent
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanIntent(s.queryRow(ctx, tx, `SELECT `+intentColumns+` FROM intents WHERE id = $1`, id))
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return &VersionConflictError{CurrentVersion: current.Version}
		}
		res, err := s.exec(ctx, tx, `
			UPDATE intents SET status = $1, version = version + 1, updated_at = $2
			WHERE id = $3 AND version = $4`,
			string(status), now, id, expectedVersion)
		if err != nil {
			return fmt.Errorf("store: set status: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &VersionConflictError{CurrentVersion: current.Version}
		}
		current.Status = status
		current.Version = expectedVersion + 1
		current.UpdatedAt = now
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AddDependency appends dependsID to id's depends_on list under the same
// CAS discipline as PatchState, rejecting a dependency that would
// introduce a cycle. Cycle detection walks the existing dependency graph
// breadth-first from dependsID looking for id.
func (s *Store) AddDependency(ctx context.Context, id, dependsID string, expectedVersion int64, now time.Time) (*model.Intent, error) {
	var updated *model.Intent
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanIntent(s.queryRow(ctx, tx, `SELECT `+intentColumns+` FROM intents WHERE id = $1`, id))
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return &VersionConflictError{CurrentVersion: current.Version}
		}
		if id == dependsID {
			return ErrCycle
		}
		if cyclic, err := s.reaches(ctx, tx, dependsID, id); err != nil {
			return err
		} else if cyclic {
			return ErrCycle
		}
		for _, d := range current.DependsOn {
			if d == dependsID {
				updated = current
				return nil
			}
		}
		newDeps := append(append([]string{}, current.DependsOn...), dependsID)
		depsJSON, err := marshalJSON(newDeps)
		if err != nil {
			return err
		}
		res, err := s.exec(ctx, tx, `
			UPDATE intents SET depends_on = $1, version = version + 1, updated_at = $2
			WHERE id = $3 AND version = $4`,
			depsJSON, now, id, expectedVersion)
		if err != nil {
			return fmt.Errorf("store: add dependency: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &VersionConflictError{CurrentVersion: current.Version}
		}
		current.DependsOn = newDeps
		current.Version = expectedVersion + 1
		current.UpdatedAt = now
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveDependency drops dependsID from id's depends_on list under the
// same CAS discipline as PatchState.
func (s *Store) RemoveDependency(ctx context.Context, id, dependsID string, expectedVersion int64, now time.Time) (*model.Intent, error) {
	var updated *model.Intent
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanIntent(s.queryRow(ctx, tx, `SELECT `+intentColumns+` FROM intents WHERE id = $1`, id))
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return &VersionConflictError{CurrentVersion: current.Version}
		}
		newDeps := make([]string, 0, len(current.DependsOn))
		for _, d := range current.DependsOn {
			if d != dependsID {
				newDeps = append(newDeps, d)
			}
		}
		depsJSON, err := marshalJSON(newDeps)
		if err != nil {
			return err
		}
		res, err := s.exec(ctx, tx, `
			UPDATE intents SET depends_on = $1, version = version + 1, updated_at = $2
			WHERE id = $3 AND version = $4`,
			depsJSON, now, id, expectedVersion)
		if err != nil {
			return fmt.Errorf("store: remove dependency: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &VersionConflictError{CurrentVersion: current.Version}
		}
		current.DependsOn = newDeps
		current.Version = expectedVersion + 1
		current.UpdatedAt = now
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetGovernancePolicy overwrites an intent's governance_policy document
// under the same CAS discipline as PatchState (spec.md §4.5's
// If-Match=v requirement).
func (s *Store) SetGovernancePolicy(ctx context.Context, id string, expectedVersion int64, policy map[string]any, now time.Time) (*model.Intent, error) {
	policyJSON, err := marshalJSON(policy)
	if err != nil {
		return nil, err
	}
	var updated *model.Intent
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanIntent(s.queryRow(ctx, tx, `SELECT `+intentColumns+` FROM intents WHERE id = $1`, id))
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return &VersionConflictError{CurrentVersion: current.Version}
		}
		res, err := s.exec(ctx, tx, `
			UPDATE intents SET governance_policy = $1, version = version + 1, updated_at = $2
			WHERE id = $3 AND version = $4`,
			policyJSON, now, id, expectedVersion)
		if err != nil {
			return fmt.Errorf("store: set governance policy: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &VersionConflictError{CurrentVersion: current.Version}
		}
		current.GovernancePolicy = policy
		current.Version = expectedVersion + 1
		current.UpdatedAt = now
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// reaches reports whether a breadth-first walk of depends_on edges
// starting at from ever visits to.
func (s *Store) reaches(ctx context.Context, tx *sql.Tx, from, to string) (bool, error) {
	visited := map[string]bool{}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			return true, nil
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		row := s.queryRow(ctx, tx, `SELECT depends_on FROM intents WHERE id = $1`, cur)
		var raw string
		if err := row.Scan(&raw); err == sql.ErrNoRows {
			continue
		} else if err != nil {
			return false, fmt.Errorf("store: cycle check: %w", err)
		}
		var deps []string
		if err := unmarshalJSON(raw, &deps); err != nil {
			return false, fmt.Errorf("store: decode depends_on: %w", err)
		}
		queue = append(queue, deps...)
	}
	return false, nil
}

// DeleteIntent removes an intent. Nothing in this repository calls it;
// the server-facing API never exposes hard deletes (spec.md has no delete
// operation in its intent surface).
func (s *Store) DeleteIntent(ctx context.Context, id string) error {
	_, err := s.exec(ctx, nil, `DELETE FROM intents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete intent: %w", err)
	}
	return nil
}
