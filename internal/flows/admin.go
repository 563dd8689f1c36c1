package flows

import (
	"context"
	"errors"

	"github.com/portunus-id/portunus/account"
	"github.com/portunus-id/portunus/jwt"
	"github.com/portunus-id/portunus/password"
)

// AdminCreateRequest provisions an account on someone's behalf.
type AdminCreateRequest struct {
	Email       string
	IsStaff     bool
	IsSuperuser bool
}

// AdminCreateUser creates an account without a usable password and mails a
// set-password link built from a reset token.
func (s *Service) AdminCreateUser(ctx context.Context, req AdminCreateRequest) (account.User, error) {
	if err := s.ready(); err != nil {
		return account.User{}, err
	}
	user, err := s.adminCreateUser(ctx, req)
	s.record(ctx, EventAdminCreateUser, user.ID, "", err, nil)
	return user, err
}

func (s *Service) adminCreateUser(ctx context.Context, req AdminCreateRequest) (account.User, error) {
	if v := account.ValidateEmail(req.Email); v != nil {
		return account.User{}, v
	}
	hash, err := password.Unusable()
	if err != nil {
		return account.User{}, s.backend(err)
	}
	user, err := s.createUser(ctx, account.CreateInput{
		Email:        req.Email,
		PasswordHash: hash,
		IsStaff:      req.IsStaff,
		IsSuperuser:  req.IsSuperuser,
	})
	if errors.Is(err, account.ErrDuplicateEmail) {
		return account.User{}, account.NewValidationError("email", "A user with this email already exists.")
	}
	if err != nil {
		return account.User{}, err
	}

	token, err := s.deps.Ledger.Issue(ctx, user.ID, jwt.KindReset)
	if err != nil {
		return user, s.backend(err)
	}
	link := s.setPasswordLink(user.ID, token.Raw)
	to := user.Email
	m := s.mail()
	s.enqueue(ctx, "send_account_created", func(ctx context.Context) error {
		return m.SendAccountCreated(ctx, to, link)
	})
	return user, nil
}

// AdminSearch pages through users whose email contains query.
func (s *Service) AdminSearch(ctx context.Context, query string, limit, offset int) (account.SearchResult, error) {
	if err := s.ready(); err != nil {
		return account.SearchResult{}, err
	}
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	if offset < 0 {
		offset = 0
	}
	res, err := s.deps.Accounts.Search(ctx, query, limit, offset)
	if err != nil {
		return account.SearchResult{}, s.backend(err)
	}
	return res, nil
}

// AdminGet returns one user.
func (s *Service) AdminGet(ctx context.Context, userID string) (account.User, error) {
	if err := s.ready(); err != nil {
		return account.User{}, err
	}
	user, err := s.deps.Accounts.GetByID(ctx, userID)
	if errors.Is(err, account.ErrNotFound) {
		return account.User{}, s.deps.Errors.NotFound
	}
	if err != nil {
		return account.User{}, s.backend(err)
	}
	return user, nil
}

// AdminDelete revokes every token of the user and deletes the account.
func (s *Service) AdminDelete(ctx context.Context, userID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	err := s.deleteUser(ctx, userID)
	s.record(ctx, EventAdminDeleteUser, userID, "", err, nil)
	return err
}

// DeleteAccount is the self-service deletion. It requires the password.
func (s *Service) DeleteAccount(ctx context.Context, userID, pw string) error {
	if err := s.ready(); err != nil {
		return err
	}
	user, err := s.userByID(ctx, userID)
	if err == nil {
		err = s.VerifyForSensitiveAction(ctx, user, pw)
	}
	if err == nil {
		err = s.deleteUser(ctx, userID)
	}
	s.record(ctx, EventAccountDeleted, userID, "", err, nil)
	return err
}

func (s *Service) deleteUser(ctx context.Context, userID string) error {
	if _, err := s.deps.Accounts.GetByID(ctx, userID); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return s.deps.Errors.NotFound
		}
		return s.backend(err)
	}
	if err := s.revokeEverything(ctx, userID); err != nil {
		return err
	}
	if err := s.deps.Accounts.Delete(ctx, userID); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return s.deps.Errors.NotFound
		}
		return s.backend(err)
	}
	return nil
}

// SetStaff sets the staff flag of the user with email.
func (s *Service) SetStaff(ctx context.Context, email string, staff bool) (account.User, error) {
	return s.setFlags(ctx, email, func(u *account.User) { u.IsStaff = staff })
}

// SetSuperuser sets the superuser flag of the user with email.
func (s *Service) SetSuperuser(ctx context.Context, email string, superuser bool) (account.User, error) {
	return s.setFlags(ctx, email, func(u *account.User) { u.IsSuperuser = superuser })
}

func (s *Service) setFlags(ctx context.Context, email string, mutate func(*account.User)) (account.User, error) {
	if err := s.ready(); err != nil {
		return account.User{}, err
	}
	user, err := s.deps.Accounts.GetByEmail(ctx, email)
	if errors.Is(err, account.ErrNotFound) {
		return account.User{}, s.deps.Errors.NotFound
	}
	if err != nil {
		return account.User{}, s.backend(err)
	}
	mutate(&user)
	err = s.deps.Accounts.SetFlags(ctx, user.ID, user.IsStaff, user.IsSuperuser)
	if err != nil {
		err = s.backend(err)
	}
	s.record(ctx, EventUserFlagsChanged, user.ID, "", err, nil)
	return user, err
}
