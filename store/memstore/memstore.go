// Package memstore is an in-memory account.Store and mfa.Store for tests and
// single-process development.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/portunus-id/portunus/account"
	"github.com/portunus-id/portunus/mfa"
)

// Store keeps users and MFA methods behind one mutex.
type Store struct {
	mu      sync.Mutex
	users   map[string]account.User
	byEmail map[string]string
	methods map[int64]mfa.Method
	nextID  int64
	now     func() time.Time
}

func New() *Store {
	return &Store{
		users:   make(map[string]account.User),
		byEmail: make(map[string]string),
		methods: make(map[int64]mfa.Method),
		now:     time.Now,
	}
}

var (
	_ account.Store = (*Store)(nil)
	_ mfa.Store     = (*Store)(nil)
)

func (s *Store) GetByEmail(_ context.Context, email string) (account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[account.NormalizeEmail(email)]
	if !ok {
		return account.User{}, account.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) GetByID(_ context.Context, id string) (account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return account.User{}, account.ErrNotFound
	}
	return u, nil
}

func (s *Store) Create(_ context.Context, in account.CreateInput) (account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := account.NormalizeEmail(in.Email)
	if _, ok := s.byEmail[key]; ok {
		return account.User{}, account.ErrDuplicateEmail
	}
	now := s.now().UTC()
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
	s.users[u.ID] = u
	s.byEmail[key] = u.ID
	return u, nil
}

func (s *Store) update(id string, fn func(*account.User) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return account.ErrNotFound
	}
	if err := fn(&u); err != nil {
		return err
	}
	u.UpdatedAt = s.now().UTC()
	s.users[id] = u
	return nil
}

func (s *Store) UpdatePassword(_ context.Context, id, hash string) error {
	return s.update(id, func(u *account.User) error {
		u.PasswordHash = hash
		return nil
	})
}

func (s *Store) UpdateEmail(_ context.Context, id, email string) error {
	return s.update(id, func(u *account.User) error {
		key := account.NormalizeEmail(email)
		if owner, ok := s.byEmail[key]; ok && owner != id {
			return account.ErrDuplicateEmail
		}
		delete(s.byEmail, account.NormalizeEmail(u.Email))
		s.byEmail[key] = id
		u.Email = strings.TrimSpace(email)
		return nil
	})
}

func (s *Store) SetFlags(_ context.Context, id string, staff, superuser bool) error {
	return s.update(id, func(u *account.User) error {
		u.IsStaff, u.IsSuperuser = staff, superuser
		return nil
	})
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return account.ErrNotFound
	}
	delete(s.users, id)
	delete(s.byEmail, account.NormalizeEmail(u.Email))
	for mid, m := range s.methods {
		if m.UserID == id {
			delete(s.methods, mid)
		}
	}
	return nil
}

func (s *Store) Search(_ context.Context, query string, limit, offset int) (account.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(query)
	var matched []account.User
	for _, u := range s.users {
		if strings.Contains(strings.ToLower(u.Email), q) {
			matched = append(matched, u)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Email < matched[j].Email })

	res := account.SearchResult{Total: len(matched)}
	if offset >= len(matched) {
		return res, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	res.Users = append([]account.User(nil), matched[offset:end]...)
	return res, nil
}

func (s *Store) GetMethod(_ context.Context, userID string, t mfa.MethodType) (mfa.Method, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.methods {
		if m.UserID == userID && m.Type == t {
			return m, nil
		}
	}
	return mfa.Method{}, mfa.ErrNotFound
}

func (s *Store) ListMethods(_ context.Context, userID string) ([]mfa.Method, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []mfa.Method
	for _, m := range s.methods {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateMethod returns the existing method when the user already has one of
// the same type.
func (s *Store) CreateMethod(_ context.Context, m mfa.Method) (mfa.Method, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.methods {
		if existing.UserID == m.UserID && existing.Type == m.Type {
			return existing, nil
		}
	}
	s.nextID++
	m.ID = s.nextID
	s.methods[m.ID] = m
	return m, nil
}

func (s *Store) SetMethodCode(_ context.Context, id int64, code string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.methods[id]
	if !ok {
		return mfa.ErrNotFound
	}
	m.CurrentCode, m.CodeGeneratedAt = code, at
	s.methods[id] = m
	return nil
}

func (s *Store) ClearMethodCode(_ context.Context, id int64, code string, notBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.methods[id]
	if !ok || m.CurrentCode == "" || m.CurrentCode != code || m.CodeGeneratedAt.Before(notBefore) {
		return false, nil
	}
	m.CurrentCode = ""
	s.methods[id] = m
	return true, nil
}

func (s *Store) SetMethodState(_ context.Context, id int64, active, primary bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.methods[id]
	if !ok {
		return mfa.ErrNotFound
	}
	m.IsActive, m.IsPrimary = active, primary
	s.methods[id] = m
	return nil
}

func (s *Store) HasPrimaryMethod(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.methods {
		if m.UserID == userID && m.IsPrimary {
			return true, nil
		}
	}
	return false, nil
}
