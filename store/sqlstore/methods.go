package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/portunus-id/portunus/mfa"
)

const methodColumns = `id, user_id, type, is_active, is_primary, current_code, code_generated_at`

// methodRow mirrors mfa_methods; code_generated_at is stored as Unix
// microseconds.
type methodRow struct {
	ID              int64          `db:"id"`
	UserID          string         `db:"user_id"`
	Type            mfa.MethodType `db:"type"`
	IsActive        bool           `db:"is_active"`
	IsPrimary       bool           `db:"is_primary"`
	CurrentCode     string         `db:"current_code"`
	CodeGeneratedAt int64          `db:"code_generated_at"`
}

func (r methodRow) method() mfa.Method {
	m := mfa.Method{
		ID:          r.ID,
		UserID:      r.UserID,
		Type:        r.Type,
		IsActive:    r.IsActive,
		IsPrimary:   r.IsPrimary,
		CurrentCode: r.CurrentCode,
	}
	if r.CodeGeneratedAt > 0 {
		m.CodeGeneratedAt = time.UnixMicro(r.CodeGeneratedAt).UTC()
	}
	return m
}

func micros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func (s *Store) GetMethod(ctx context.Context, userID string, t mfa.MethodType) (mfa.Method, error) {
	var row methodRow
	q := s.db.Rebind(`SELECT ` + methodColumns + ` FROM mfa_methods WHERE user_id = ? AND type = ?`)
	err := s.db.GetContext(ctx, &row, q, userID, t)
	if errors.Is(err, sql.ErrNoRows) {
		return mfa.Method{}, mfa.ErrNotFound
	}
	if err != nil {
		return mfa.Method{}, err
	}
	return row.method(), nil
}

func (s *Store) ListMethods(ctx context.Context, userID string) ([]mfa.Method, error) {
	var rows []methodRow
	q := s.db.Rebind(`SELECT ` + methodColumns + ` FROM mfa_methods WHERE user_id = ? ORDER BY id`)
	if err := s.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, err
	}
	out := make([]mfa.Method, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.method())
	}
	return out, nil
}

// CreateMethod returns the existing row when the user already has a method
// of the same type.
func (s *Store) CreateMethod(ctx context.Context, m mfa.Method) (mfa.Method, error) {
	q := s.db.Rebind(`INSERT INTO mfa_methods (user_id, type, is_active, is_primary, current_code, code_generated_at)
		VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (user_id, type) DO NOTHING`)
	_, err := s.db.ExecContext(ctx, q, m.UserID, m.Type, m.IsActive, m.IsPrimary, m.CurrentCode, micros(m.CodeGeneratedAt))
	if err != nil {
		return mfa.Method{}, err
	}
	return s.GetMethod(ctx, m.UserID, m.Type)
}

func (s *Store) execMethod(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mfa.ErrNotFound
	}
	return nil
}

func (s *Store) SetMethodCode(ctx context.Context, id int64, code string, at time.Time) error {
	return s.execMethod(ctx, `UPDATE mfa_methods SET current_code = ?, code_generated_at = ? WHERE id = ?`,
		code, micros(at), id)
}

// ClearMethodCode is a conditional UPDATE, so two concurrent submissions of
// the same code clear it at most once.
func (s *Store) ClearMethodCode(ctx context.Context, id int64, code string, notBefore time.Time) (bool, error) {
	if code == "" {
		return false, nil
	}
	q := s.db.Rebind(`UPDATE mfa_methods SET current_code = ''
		WHERE id = ? AND current_code = ? AND code_generated_at >= ?`)
	res, err := s.db.ExecContext(ctx, q, id, code, micros(notBefore))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) SetMethodState(ctx context.Context, id int64, active, primary bool) error {
	return s.execMethod(ctx, `UPDATE mfa_methods SET is_active = ?, is_primary = ? WHERE id = ?`,
		active, primary, id)
}

func (s *Store) HasPrimaryMethod(ctx context.Context, userID string) (bool, error) {
	var n int
	q := s.db.Rebind(`SELECT COUNT(*) FROM mfa_methods WHERE user_id = ? AND is_primary = ?`)
	if err := s.db.GetContext(ctx, &n, q, userID, true); err != nil {
		return false, err
	}
	return n > 0, nil
}
