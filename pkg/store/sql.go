package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/hotdash/opsgate/pkg/contracts"
)

// sqlStore holds the queries shared by the Postgres and SQLite stores. The
// full record is kept as JSON in body; the filterable fields are columns.
type sqlStore struct {
	db          *sql.DB
	rebind      func(string) string
	isDuplicate func(error) bool
}

var placeholder = regexp.MustCompile(`\$\d+`)

// questionMarks rewrites $n placeholders for drivers that take '?'. Each
// placeholder must appear once and in order.
func questionMarks(q string) string {
	return placeholder.ReplaceAllString(q, "?")
}

func (s *sqlStore) Create(ctx context.Context, req *contracts.ApprovalRequest) error {
	req.Version = 1
	body, err := json.Marshal(req)
	if err != nil {
		req.Version = 0
		return fmt.Errorf("encode approval %s: %w", req.ID, err)
	}
	query := `
		INSERT INTO approvals (id, kind, state, fingerprint, created_at, updated_at, version, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.ExecContext(ctx, s.rebind(query),
		req.ID, req.Kind, string(req.State), req.Fingerprint,
		req.CreatedAt.UTC(), req.UpdatedAt.UTC(), req.Version, string(body),
	)
	if err != nil {
		req.Version = 0
		if s.isDuplicate != nil && s.isDuplicate(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, req.ID)
		}
		return fmt.Errorf("failed to insert approval: %w", err)
	}
	return nil
}

func (s *sqlStore) Get(ctx context.Context, id string) (*contracts.ApprovalRequest, error) {
	query := `SELECT body FROM approvals WHERE id = $1`
	var body string
	err := s.db.QueryRowContext(ctx, s.rebind(query), id).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return decode([]byte(body))
}

func (s *sqlStore) Update(ctx context.Context, req *contracts.ApprovalRequest) error {
	expected := req.Version
	req.Version = expected + 1
	body, err := json.Marshal(req)
	if err != nil {
		req.Version = expected
		return fmt.Errorf("encode approval %s: %w", req.ID, err)
	}
	query := `
		UPDATE approvals
		SET state = $1, fingerprint = $2, updated_at = $3, version = $4, body = $5
		WHERE id = $6 AND version = $7
	`
	res, err := s.db.ExecContext(ctx, s.rebind(query),
		string(req.State), req.Fingerprint, req.UpdatedAt.UTC(), req.Version, string(body), req.ID, expected,
	)
	if err != nil {
		req.Version = expected
		return fmt.Errorf("failed to update approval: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		req.Version = expected
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		req.Version = expected
		if _, gerr := s.Get(ctx, req.ID); errors.Is(gerr, ErrNotFound) {
			return gerr
		}
		return fmt.Errorf("%w: %s at version %d", ErrVersionConflict, req.ID, expected)
	}
	return nil
}

func (s *sqlStore) List(ctx context.Context, f Filter) ([]*contracts.ApprovalRequest, error) {
	var (
		where []string
		args  []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if f.State != "" {
		add("state", string(f.State))
	}
	if f.Kind != "" {
		add("kind", f.Kind)
	}
	if f.Fingerprint != "" {
		add("fingerprint", f.Fingerprint)
	}

	query := "SELECT body FROM approvals"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	if f.Limit > 0 || f.Offset > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = math.MaxInt32
		}
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		if f.Offset > 0 {
			args = append(args, f.Offset)
			query += fmt.Sprintf(" OFFSET $%d", len(args))
		}
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]*contracts.ApprovalRequest, 0)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		r, err := decode([]byte(body))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
