package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fitbet/bet-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the user directory. Writes go to the primary store and invalidate
// the cache; reads check Redis first then fall back to the primary.
//
// Schedule entries, bets and notifications are never cached. Placement and
// resolution decide on the completed flag and the ACTIVE state, and an
// invalidate-then-repopulate cache can hand back a stale copy of either.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) UpsertUser(ctx context.Context, u *model.User) error {
	if err := s.primary.UpsertUser(ctx, u); err != nil {
		return err
	}
	s.rdb.Del(ctx, userKey(u.ID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if s.lookup(ctx, userKey(id), &u) {
		return &u, nil
	}

	user, err := s.primary.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, userKey(id), user)
	return user, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) CreateSchedule(ctx context.Context, e *model.ScheduleEntry) error {
	return s.primary.CreateSchedule(ctx, e)
}

func (s *CachedStore) GetSchedule(ctx context.Context, id string) (*model.ScheduleEntry, error) {
	return s.primary.GetSchedule(ctx, id)
}

func (s *CachedStore) SetScheduleCompleted(ctx context.Context, id string, completed bool, completedAt *time.Time) (bool, error) {
	return s.primary.SetScheduleCompleted(ctx, id, completed, completedAt)
}

func (s *CachedStore) DeleteScheduleIfNoActiveBets(ctx context.Context, id string) error {
	return s.primary.DeleteScheduleIfNoActiveBets(ctx, id)
}

func (s *CachedStore) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.primary.ListUsers(ctx)
}

func (s *CachedStore) ListSchedulesByOwner(ctx context.Context, ownerID string, from, to time.Time) ([]model.ScheduleEntry, error) {
	return s.primary.ListSchedulesByOwner(ctx, ownerID, from, to)
}

func (s *CachedStore) ListOverdueSchedules(ctx context.Context, before time.Time) ([]model.ScheduleEntry, error) {
	return s.primary.ListOverdueSchedules(ctx, before)
}

func (s *CachedStore) CreateBet(ctx context.Context, b *model.Bet) error {
	return s.primary.CreateBet(ctx, b)
}

func (s *CachedStore) GetBet(ctx context.Context, id string) (*model.Bet, error) {
	return s.primary.GetBet(ctx, id)
}

func (s *CachedStore) ListBetsBySchedule(ctx context.Context, scheduleID string, activeOnly bool) ([]model.Bet, error) {
	return s.primary.ListBetsBySchedule(ctx, scheduleID, activeOnly)
}

func (s *CachedStore) ListBetsByPlacer(ctx context.Context, placerID string) ([]model.Bet, error) {
	return s.primary.ListBetsByPlacer(ctx, placerID)
}

func (s *CachedStore) ListBetsByTarget(ctx context.Context, targetID string) ([]model.Bet, error) {
	return s.primary.ListBetsByTarget(ctx, targetID)
}

func (s *CachedStore) ResolveBet(ctx context.Context, id string, res model.Resolution) (bool, error) {
	return s.primary.ResolveBet(ctx, id, res)
}

func (s *CachedStore) InsertNotification(ctx context.Context, n *model.Notification) error {
	return s.primary.InsertNotification(ctx, n)
}

func (s *CachedStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	return s.primary.ListNotifications(ctx, userID, unreadOnly, limit)
}

func (s *CachedStore) SetNotificationsRead(ctx context.Context, userID string, ids []string, read bool) (int, error) {
	return s.primary.SetNotificationsRead(ctx, userID, ids, read)
}

func (s *CachedStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	return s.primary.MarkAllNotificationsRead(ctx, userID)
}

func (s *CachedStore) CountUnreadNotifications(ctx context.Context, userID string, typ model.NotificationType) (int, error) {
	return s.primary.CountUnreadNotifications(ctx, userID, typ)
}

// --- Cache helpers ---

func (s *CachedStore) lookup(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) cache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func userKey(id string) string { return fmt.Sprintf("user:%s", id) }
