package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/portunus-id/portunus"
	"github.com/portunus-id/portunus/middleware"
)

type credentialsBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Provider string `json:"provider"`
	Token    string `json:"token"`
	Next     string `json:"next"`
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if err := decode(r, &body); err != nil {
		a.failErr(w, r, err)
		return
	}
	res, err := a.engine.Register(r.Context(), portunus.RegisterRequest{
		Email:    body.Email,
		Password: body.Password,
		Next:     body.Next,
	})
	if err != nil {
		a.failErr(w, r, err)
		return
	}
	a.loginResponse(w, r, res)
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if err := decode(r, &body); err != nil {
		a.failErr(w, r, err)
		return
	}
	middleware.NoteUser(r.Context(), body.Email)
	res, err := a.engine.Login(r.Context(), portunus.LoginRequest{
		Credentials: portunus.Credentials{
			Email:    body.Email,
			Password: body.Password,
			Provider: portunus.Provider(body.Provider),
			Token:    body.Token,
		},
		Next: body.Next,
	})
	if err != nil {
		a.failErr(w, r, err)
		return
	}
	a.loginResponse(w, r, res)
}

func (a *API) loginMfa(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MfaToken string `json:"mfa_token"`
		Code     string `json:"code"`
		Next     string `json:"next"`
	}
	if err := decode(r, &body); err != nil {
		a.failErr(w, r, err)
		return
	}
	res, err := a.engine.LoginWithMfaCode(r.Context(), body.MfaToken, body.Code, body.Next)
	if err != nil {
		a.failErr(w, r, err)
		return
	}
	a.loginResponse(w, r, res)
}

func (a *API) loginResponse(w http.ResponseWriter, r *http.Request, res *portunus.LoginResult) {
	if res.MfaRequired {
		a.ok(w, fields{
			"mfa_required": true,
			"mfa_token":    res.MfaToken,
			"mfa_type":     res.MfaType,
			"next":         res.Next,
		})
		return
	}
	middleware.NoteUser(r.Context(), res.Session.User.Email)
	a.startSession(w, res.Session, fields{"next": res.Next})
}

func (a *API) startSession(w http.ResponseWriter, s *portunus.SessionResult, extra fields) {
	a.cookies.setSession(w, s.SessionID, s.CSRFToken)
	body := fields{
		"user":         s.User,
		"access_token": s.AccessToken,
		"expires_at":   s.ExpiresAt.UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		body[k] = v
	}
	a.ok(w, body)
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.BearerToken(r)
	err := a.engine.Logout(r.Context(), token, a.cookies.sessionID(r))
	a.cookies.clear(w)
	if err != nil {
		a.failErr(w, r, err)
		return
	}
	a.ok(w, nil)
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	res, err := a.engine.Refresh(r.Context(), a.cookies.sessionID(r))
	if err != nil {
		if errors.Is(err, portunus.ErrInvalidToken) {
			a.cookies.clear(w)
			a.deny(w, r, http.StatusUnauthorized, err)
			return
		}
		a.failErr(w, r, err)
		return
	}
	a.cookies.setSession(w, a.cookies.sessionID(r), res.CSRFToken)
	a.ok(w, fields{"access_token": res.AccessToken, "rotated": res.Rotated})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	a.ok(w, fields{"user": user})
}

func (a *API) changePassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := decode(r, &body); err != nil {
		a.failErr(w, r, err)
		return
	}
	user, _ := middleware.UserFromContext(r.Context())
	res, err := a.engine.ChangePassword(r.Context(), portunus.ChangePasswordRequest{
		UserID:          user.ID,
		CurrentPassword: body.CurrentPassword,
		NewPassword:     body.NewPassword,
	})
	if err != nil {
		a.failErr(w, r, err)
		return
	}
	a.startSession(w, res, nil)
}

// requestPasswordReset always reports success so the response never tells
// whether the address is registered. Throttling still surfaces.
func (a *API) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decode(r, &body); err != nil {
		a.failErr(w, r, err)
		return
	}
	middleware.NoteUser(r.Context(), body.Email)
	if err := a.engine.RequestPasswordReset(r.Context(), body.Email); err != nil {
		a.failErr(w, r, err)
		return
	}
	a.ok(w, nil)
}

func (a *API) completePasswordReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID      string `json:"user_id"`
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := decode(r, &body); err != nil {
		a.failErr(w, r, err)
		return
	}
	res, err := a.engine.CompletePasswordReset(r.Context(), portunus.CompletePasswordRequest{
		UserID:      body.UserID,
		Token:       body.Token,
		NewPassword: body.NewPassword,
	})
	if err != nil {
		a.failErr(w, r, err)
		return
	}
	a.startSession(w, res, nil)
}

func (a *API) requestEmailChange(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
		NewEmail string `json:"new_email"`
	}
	if err := decode(r, &body); err != nil {
		a.failErr(w, r, err)
		return
	}
	user, _ := middleware.UserFromContext(r.Context())
	err := a.engine.RequestEmailChange(r.Context(), portunus.EmailChangeRequest{
		UserID:   user.ID,
		Password: body.Password,
		NewEmail: body.NewEmail,
	})
	if err != nil {
		a.failErr(w, r, err)
		return
	}
	a.ok(w, nil)
}

func (a *API) confirmEmailChange(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
		Token  string `json:"token"`
	}
	if err := decode(r, &body); err != nil {
		a.failErr(w, r, err)
		return
	}
	user, err := a.engine.ConfirmEmailChange(r.Context(), body.UserID, body.Token)
	if err != nil {
		a.failErr(w, r, err)
		return
	}
	a.ok(w, fields{"user": user})
}

func (a *API) deleteAccount(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := decode(r, &body); err != nil {
		a.failErr(w, r, err)
		return
	}
	user, _ := middleware.UserFromContext(r.Context())
	if err := a.engine.DeleteAccount(r.Context(), user.ID, body.Password); err != nil {
		a.failErr(w, r, err)
		return
	}
	a.cookies.clear(w)
	a.ok(w, nil)
}
