package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cleanup := func() {
		_ = rdb.Close()
		mr.Close()
	}
	return NewStore(rdb, "test"), mr, cleanup
}

func sampleSession(id, user string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		UserID:       user,
		RefreshToken: "refresh-" + id,
		CSRFToken:    "csrf-" + id,
		CreatedAt:    now.Unix(),
		ExpiresAt:    now.Add(time.Hour).Unix(),
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	in := sampleSession("s1", "u1")
	if err := store.Save(ctx, in, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if *out != *in {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
}

func TestGetMissingAndExpired(t *testing.T) {
	store, mr, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if _, err := store.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Get(ctx, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty id, got %v", err)
	}

	if err := store.Save(ctx, sampleSession("s1", "u1"), time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ttl expiry, got %v", err)
	}

	stale := sampleSession("s2", "u1")
	stale.ExpiresAt = time.Now().Add(-time.Second).Unix()
	if err := store.Save(ctx, stale, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Get(ctx, "s2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected stored expiry to win, got %v", err)
	}
}

func TestReplaceRefreshToken(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Save(ctx, sampleSession("s1", "u1"), time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.ReplaceRefreshToken(ctx, "s1", "refresh-s1", "refresh-next"); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, _ := store.Get(ctx, "s1")
	if got.RefreshToken != "refresh-next" || got.CSRFToken != "csrf-s1" {
		t.Fatalf("unexpected session after replace: %+v", got)
	}
	if err := store.ReplaceRefreshToken(ctx, "s1", "refresh-s1", "again"); !errors.Is(err, ErrRefreshMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if err := store.ReplaceRefreshToken(ctx, "missing", "a", "b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentReplaceHasOneWinner(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Save(ctx, sampleSession("s1", "u1"), time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := store.ReplaceRefreshToken(ctx, "s1", "refresh-s1", "next"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected one winner, got %d", wins)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Save(ctx, sampleSession("s1", "u1"), time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := store.Delete(ctx, "s1"); err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
	}
	ids, _ := store.ActiveSessionIDs(ctx, "u1")
	if len(ids) != 0 {
		t.Fatalf("expected index cleanup, got %v", ids)
	}
}

func TestDeleteAllForUser(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Save(ctx, sampleSession(id, "u1"), time.Hour); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := store.Save(ctx, sampleSession("other", "u2"), time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	n, err := store.DeleteAllForUser(ctx, "u1")
	if err != nil || n != 3 {
		t.Fatalf("expected 3 deleted, got %d (%v)", n, err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.Get(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("session %s survived: %v", id, err)
		}
	}
	if _, err := store.Get(ctx, "other"); err != nil {
		t.Fatalf("other user's session removed: %v", err)
	}
	if n, err := store.DeleteAllForUser(ctx, "nobody"); err != nil || n != 0 {
		t.Fatalf("expected no-op, got %d %v", n, err)
	}
}
