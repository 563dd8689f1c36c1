package flows

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/portunus-id/portunus/account"
	"github.com/portunus-id/portunus/internal"
	"github.com/portunus-id/portunus/jwt"
	"github.com/portunus-id/portunus/ledger"
	"github.com/portunus-id/portunus/session"
)

// SessionResult is what a client receives after a session starts. The
// refresh token stays server-side.
type SessionResult struct {
	User        account.User
	SessionID   string
	CSRFToken   string
	AccessToken string
	ExpiresAt   time.Time
}

// StartSession resets the failure counter, issues a refresh token, derives
// an access token from it and stores a fresh session with a new CSRF token.
func (s *Service) StartSession(ctx context.Context, user account.User) (*SessionResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := s.deps.Failures.Reset(ctx, user.ID); err != nil {
		return nil, s.backend(err)
	}

	refresh, err := s.deps.Ledger.Issue(ctx, user.ID, jwt.KindRefresh)
	if err != nil {
		return nil, s.backend(err)
	}
	access, err := s.deps.Ledger.Issue(ctx, user.ID, jwt.KindAccess, ledger.WithParent(refresh.ID(), refresh.ExpiresAt()))
	if err != nil {
		return nil, s.backend(err)
	}

	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, s.backend(err)
	}
	csrf, err := internal.NewCSRFToken()
	if err != nil {
		return nil, s.backend(err)
	}

	now := s.deps.Now()
	expires := now.Add(s.deps.Policy.SessionAge)
	sess := &session.Session{
		ID:           sid.String(),
		UserID:       user.ID,
		RefreshToken: refresh.Raw,
		CSRFToken:    csrf,
		CreatedAt:    now.Unix(),
		ExpiresAt:    expires.Unix(),
	}
	if err := s.deps.Sessions.Save(ctx, sess, s.deps.Policy.SessionAge); err != nil {
		return nil, s.backend(err)
	}

	s.record(ctx, EventSessionCreated, user.ID, sess.ID, nil, nil)
	return &SessionResult{
		User:        user,
		SessionID:   sess.ID,
		CSRFToken:   csrf,
		AccessToken: access.Raw,
		ExpiresAt:   expires,
	}, nil
}

// RefreshResult carries the new access token and, for callers that show it,
// the session's CSRF token.
type RefreshResult struct {
	AccessToken string
	CSRFToken   string
	Rotated     bool
}

// Refresh exchanges the session's stored refresh token for a new access
// token, rotating the refresh token when the policy says so.
func (s *Service) Refresh(ctx context.Context, sessionID string) (*RefreshResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	res, userID, err := s.refresh(ctx, sessionID)
	s.record(ctx, EventRefresh, userID, sessionID, err, nil)
	return res, err
}

func (s *Service) refresh(ctx context.Context, sessionID string) (*RefreshResult, string, error) {
	if sessionID == "" {
		return nil, "", s.deps.Errors.InvalidToken
	}
	sess, err := s.deps.Sessions.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, "", s.deps.Errors.InvalidToken
	}
	if err != nil {
		return nil, "", s.backend(err)
	}

	claims, err := s.deps.Ledger.Verify(ctx, sess.RefreshToken, jwt.KindRefresh)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalid) {
			return nil, sess.UserID, s.deps.Errors.InvalidToken
		}
		return nil, sess.UserID, s.backend(err)
	}
	if claims.UserID() != sess.UserID {
		return nil, sess.UserID, s.deps.Errors.InvalidToken
	}

	parent, parentExpiry := claims.ID, claims.ExpiresAt.Time
	rotated := false
	if s.deps.Policy.RotateRefreshTokens {
		next, err := s.deps.Ledger.Issue(ctx, sess.UserID, jwt.KindRefresh)
		if err != nil {
			return nil, sess.UserID, s.backend(err)
		}
		err = s.deps.Sessions.ReplaceRefreshToken(ctx, sess.ID, sess.RefreshToken, next.Raw)
		if err != nil {
			// A concurrent refresh already rotated; the new token is orphaned.
			if _, rerr := s.deps.Ledger.Revoke(ctx, next.Raw); rerr != nil {
				s.deps.Log.Warn("revoke orphaned refresh failed", zap.Error(rerr))
			}
			if errors.Is(err, session.ErrRefreshMismatch) || errors.Is(err, session.ErrNotFound) {
				return nil, sess.UserID, s.deps.Errors.InvalidToken
			}
			return nil, sess.UserID, s.backend(err)
		}
		if s.deps.Policy.BlacklistAfterRotation {
			if _, err := s.deps.Ledger.Revoke(ctx, sess.RefreshToken); err != nil {
				s.deps.Log.Warn("blacklist rotated refresh failed", zap.Error(err))
			}
		}
		parent, parentExpiry = next.ID(), next.ExpiresAt()
		rotated = true
	}

	access, err := s.deps.Ledger.Issue(ctx, sess.UserID, jwt.KindAccess, ledger.WithParent(parent, parentExpiry))
	if err != nil {
		return nil, sess.UserID, s.backend(err)
	}
	return &RefreshResult{AccessToken: access.Raw, CSRFToken: sess.CSRFToken, Rotated: rotated}, sess.UserID, nil
}

// EndSession revokes every token of the user and clears every session, so a
// logout anywhere is a logout everywhere. With neither a user nor a live
// session it is a no-op.
func (s *Service) EndSession(ctx context.Context, userID, sessionID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if userID == "" && sessionID != "" {
		sess, err := s.deps.Sessions.Get(ctx, sessionID)
		switch {
		case errors.Is(err, session.ErrNotFound):
		case err != nil:
			return s.backend(err)
		default:
			userID = sess.UserID
		}
	}
	if userID == "" {
		if sessionID != "" {
			_ = s.deps.Sessions.Delete(ctx, sessionID)
		}
		return nil
	}

	err := s.revokeEverything(ctx, userID)
	s.record(ctx, EventLogout, userID, sessionID, err, nil)
	return err
}

// Logout ends the session identified by either the access token or the
// session cookie. Invalid or missing credentials make it a no-op.
func (s *Service) Logout(ctx context.Context, accessToken, sessionID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	userID := ""
	if accessToken != "" {
		if claims, err := s.deps.Ledger.Verify(ctx, accessToken, jwt.KindAccess); err == nil {
			userID = claims.UserID()
		}
	}
	return s.EndSession(ctx, userID, sessionID)
}

// CurrentUser resolves an access token to its user.
func (s *Service) CurrentUser(ctx context.Context, accessToken string) (account.User, *jwt.Claims, error) {
	if err := s.ready(); err != nil {
		return account.User{}, nil, err
	}
	if accessToken == "" {
		return account.User{}, nil, s.deps.Errors.InvalidToken
	}
	claims, err := s.deps.Ledger.Verify(ctx, accessToken, jwt.KindAccess)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalid) {
			return account.User{}, nil, s.deps.Errors.InvalidToken
		}
		return account.User{}, nil, s.backend(err)
	}
	user, err := s.deps.Accounts.GetByID(ctx, claims.UserID())
	if errors.Is(err, account.ErrNotFound) {
		return account.User{}, nil, s.deps.Errors.InvalidToken
	}
	if err != nil {
		return account.User{}, nil, s.backend(err)
	}
	return user, claims, nil
}

// SessionCSRF returns the CSRF token bound to a live session.
func (s *Service) SessionCSRF(ctx context.Context, sessionID string) (string, error) {
	sess, err := s.deps.Sessions.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return "", s.deps.Errors.InvalidToken
	}
	if err != nil {
		return "", s.backend(err)
	}
	return sess.CSRFToken, nil
}
