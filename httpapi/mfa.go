package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/portunus-id/portunus"
	"github.com/portunus-id/portunus/mfa"
	"github.com/portunus-id/portunus/middleware"
)

// methodType reads {method} from the route. It writes the failure itself
// and returns false for an unsupported type.
func (a *API) methodType(w http.ResponseWriter, r *http.Request) (portunus.MfaMethodType, bool) {
	t, ok := mfa.ParseMethodType(mux.Vars(r)["method"])
	if !ok {
		a.failErr(w, r, portunus.ErrMfaMethodNotFound)
	}
	return t, ok
}

func (a *API) mfaMethods(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	methods, err := a.engine.MfaMethods(r.Context(), user.ID)
	if err != nil {
		a.failErr(w, r, err)
		return
	}
	if methods == nil {
		methods = []portunus.MfaMethod{}
	}
	a.ok(w, fields{"methods": methods})
}

func (a *API) mfaActivate(w http.ResponseWriter, r *http.Request) {
	t, ok := a.methodType(w, r)
	if !ok {
		return
	}
	user, _ := middleware.UserFromContext(r.Context())
	m, err := a.engine.RequestMfaActivation(r.Context(), user.ID, t)
	if err != nil {
		a.failErr(w, r, err)
		return
	}
	a.ok(w, fields{"method": m})
}

func (a *API) mfaActivateConfirm(w http.ResponseWriter, r *http.Request) {
	t, ok := a.methodType(w, r)
	if !ok {
		return
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := decode(r, &body); err != nil {
		a.failErr(w, r, err)
		return
	}
	user, _ := middleware.UserFromContext(r.Context())
	m, err := a.engine.ConfirmMfaActivation(r.Context(), user.ID, t, body.Code)
	if err != nil {
		a.failErr(w, r, err)
		return
	}
	a.ok(w, fields{"method": m})
}

func (a *API) mfaDeactivate(w http.ResponseWriter, r *http.Request) {
	t, ok := a.methodType(w, r)
	if !ok {
		return
	}
	user, _ := middleware.UserFromContext(r.Context())
	m, err := a.engine.ConfirmMfaDeactivation(r.Context(), user.ID, t)
	if err != nil {
		a.failErr(w, r, err)
		return
	}
	a.ok(w, fields{"method": m})
}

func (a *API) mfaSendCode(w http.ResponseWriter, r *http.Request) {
	t, ok := a.methodType(w, r)
	if !ok {
		return
	}
	user, _ := middleware.UserFromContext(r.Context())
	if err := a.engine.SendMfaCode(r.Context(), user.ID, t); err != nil {
		a.failErr(w, r, err)
		return
	}
	a.ok(w, nil)
}

func (a *API) mfaSendCodeWithToken(w http.ResponseWriter, r *http.Request) {
	t, ok := a.methodType(w, r)
	if !ok {
		return
	}
	var body struct {
		MfaToken string `json:"mfa_token"`
	}
	if err := decode(r, &body); err != nil {
		a.failErr(w, r, err)
		return
	}
	if err := a.engine.SendMfaCodeWithToken(r.Context(), body.MfaToken, t); err != nil {
		a.failErr(w, r, err)
		return
	}
	a.ok(w, nil)
}
