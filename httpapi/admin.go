package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/portunus-id/portunus"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

func (a *API) adminUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		a.adminCreate(w, r)
		return
	}

	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(q.Get("offset"), 0)
	if offset < 0 {
		offset = 0
	}
	res, err := a.engine.AdminSearch(r.Context(), q.Get("q"), limit, offset)
	if err != nil {
		a.failErr(w, r, err)
		return
	}
	users := res.Users
	if users == nil {
		users = []portunus.User{}
	}
	a.ok(w, fields{"users": users, "total": res.Total, "limit": limit, "offset": offset})
}

func (a *API) adminCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		IsStaff     bool   `json:"is_staff"`
		IsSuperuser bool   `json:"is_superuser"`
	}
	if err := decode(r, &body); err != nil {
		a.failErr(w, r, err)
		return
	}
	user, err := a.engine.AdminCreateUser(r.Context(), portunus.AdminCreateRequest{
		Email:       body.Email,
		IsStaff:     body.IsStaff,
		IsSuperuser: body.IsSuperuser,
	})
	if err != nil {
		a.failErr(w, r, err)
		return
	}
	a.ok(w, fields{"user": user})
}

func (a *API) adminUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if r.Method == http.MethodDelete {
		if err := a.engine.AdminDelete(r.Context(), id); err != nil {
			a.failErr(w, r, err)
			return
		}
		a.ok(w, nil)
		return
	}
	user, err := a.engine.AdminGet(r.Context(), id)
	if err != nil {
		a.failErr(w, r, err)
		return
	}
	a.ok(w, fields{"user": user})
}

func queryInt(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
