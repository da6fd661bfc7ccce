package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/fitbet/bet-engine/internal/model"
	"github.com/fitbet/bet-engine/internal/store"
)

func newCached(t *testing.T) (*store.CachedStore, *store.MemoryStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	primary := store.NewMemoryStore()
	return store.NewCachedStore(primary, rdb, time.Minute), primary, mr
}

func TestCachedStore_GetSchedule_AlwaysReadsPrimary(t *testing.T) {
	cached, primary, mr := newCached(t)
	ctx := context.Background()
	seedEntry(t, primary, "s1", "bob", base)

	// A leftover cache value must never shadow the primary's completed flag.
	mr.Set("schedule:s1", `{"id":"s1","userId":"bob","completed":false}`)

	if _, err := cached.SetScheduleCompleted(ctx, "s1", true, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e, err := cached.GetSchedule(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.Completed {
		t.Error("expected completed=true from the primary")
	}
	if got, _ := mr.Get("schedule:s1"); got != `{"id":"s1","userId":"bob","completed":false}` {
		t.Errorf("schedule reads should not write the cache, got %s", got)
	}
}

func TestCachedStore_DeleteSchedule_PassesThrough(t *testing.T) {
	cached, primary, _ := newCached(t)
	ctx := context.Background()
	seedEntry(t, primary, "s1", "bob", base)

	if err := cached.DeleteScheduleIfNoActiveBets(ctx, "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cached.GetSchedule(ctx, "s1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCachedStore_GetUser_ServesFromCache(t *testing.T) {
	cached, primary, mr := newCached(t)
	ctx := context.Background()

	u := &model.User{Name: "Alice", Email: "alice@example.com"}
	primary.UpsertUser(ctx, u)

	if _, err := cached.GetUser(ctx, u.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mr.Set("user:"+u.ID, `{"id":"`+u.ID+`","name":"Cached Alice","email":"alice@example.com"}`)

	got, _ := cached.GetUser(ctx, u.ID)
	if got.Name != "Cached Alice" {
		t.Errorf("expected cached value, got %s", got.Name)
	}

	cached.UpsertUser(ctx, &model.User{Name: "Alice Again", Email: "alice@example.com"})
	got, _ = cached.GetUser(ctx, u.ID)
	if got.Name != "Alice Again" {
		t.Errorf("expected invalidation on upsert, got %s", got.Name)
	}
}
