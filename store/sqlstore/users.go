package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/portunus-id/portunus/account"
)

const userColumns = `pk, portunus_uuid, email, password, social_login_provider,
	is_staff, is_superuser, created_at, updated_at`

func (s *Store) getUser(ctx context.Context, where string, arg any) (account.User, error) {
	var u account.User
	q := s.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + where)
	err := s.db.GetContext(ctx, &u, q, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return account.User{}, account.ErrNotFound
	}
	if err != nil {
		return account.User{}, err
	}
	return u, nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (account.User, error) {
	return s.getUser(ctx, `email = ?`, strings.TrimSpace(email))
}

func (s *Store) GetByID(ctx context.Context, id string) (account.User, error) {
	return s.getUser(ctx, `portunus_uuid = ?`, id)
}

func (s *Store) Create(ctx context.Context, in account.CreateInput) (account.User, error) {
	now := s.timestamp()
	u := account.User{
		PK:             in.PK,
		ID:             in.ID,
		Email:          strings.TrimSpace(in.Email),
		PasswordHash:   in.PasswordHash,
		SocialProvider: in.SocialProvider,
		IsStaff:        in.IsStaff,
		IsSuperuser:    in.IsSuperuser,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES (:pk, :portunus_uuid, :email, :password, :social_login_provider,
			:is_staff, :is_superuser, :created_at, :updated_at)`, u)
	if isUniqueViolation(err) {
		return account.User{}, account.ErrDuplicateEmail
	}
	if err != nil {
		return account.User{}, err
	}
	return u, nil
}

// exec runs an UPDATE or DELETE keyed by one user and maps zero affected
// rows to account.ErrNotFound.
func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if isUniqueViolation(err) {
		return account.ErrDuplicateEmail
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return account.ErrNotFound
	}
	return nil
}

func (s *Store) UpdatePassword(ctx context.Context, id, hash string) error {
	return s.exec(ctx, `UPDATE users SET password = ?, updated_at = ? WHERE portunus_uuid = ?`,
		hash, s.timestamp(), id)
}

func (s *Store) UpdateEmail(ctx context.Context, id, email string) error {
	return s.exec(ctx, `UPDATE users SET email = ?, updated_at = ? WHERE portunus_uuid = ?`,
		strings.TrimSpace(email), s.timestamp(), id)
}

func (s *Store) SetFlags(ctx context.Context, id string, staff, superuser bool) error {
	return s.exec(ctx, `UPDATE users SET is_staff = ?, is_superuser = ?, updated_at = ? WHERE portunus_uuid = ?`,
		staff, superuser, s.timestamp(), id)
}

// Delete removes the user and its MFA methods in one transaction.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM mfa_methods WHERE user_id = ?`), id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM users WHERE portunus_uuid = ?`), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return account.ErrNotFound
	}
	return tx.Commit()
}

// Search matches a case-insensitive email substring, ordered by email. A
// limit <= 0 returns every match.
func (s *Store) Search(ctx context.Context, query string, limit, offset int) (account.SearchResult, error) {
	pattern := likePattern(query)
	const where = ` FROM users WHERE lower(email) LIKE ? ESCAPE '\'`

	var res account.SearchResult
	if err := s.db.GetContext(ctx, &res.Total, s.db.Rebind(`SELECT COUNT(*)`+where), pattern); err != nil {
		return account.SearchResult{}, err
	}
	if offset < 0 {
		offset = 0
	}

	q := `SELECT ` + userColumns + where + ` ORDER BY email`
	args := []any{pattern}
	if limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	} else if offset > 0 {
		q += ` LIMIT -1 OFFSET ?`
		if s.db.DriverName() == DriverPostgres {
			q = strings.Replace(q, "LIMIT -1", "LIMIT ALL", 1)
		}
		args = append(args, offset)
	}
	if err := s.db.SelectContext(ctx, &res.Users, s.db.Rebind(q), args...); err != nil {
		return account.SearchResult{}, err
	}
	return res, nil
}
