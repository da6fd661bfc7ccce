package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fitbet/bet-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]*model.User
	schedules     map[string]*model.ScheduleEntry
	bets          map[string]*model.Bet
	notifications []*model.Notification
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]*model.User),
		schedules: make(map[string]*model.ScheduleEntry),
		bets:      make(map[string]*model.Bet),
	}
}

// --- Users ---

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *u
	return &copy, nil
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

func (s *MemoryStore) UpsertUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == u.Email {
			existing.Name = u.Name
			existing.Image = u.Image
			u.ID = existing.ID
			return nil
		}
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	copy := *u
	s.users[u.ID] = &copy
	return nil
}

// --- Schedules ---

func (s *MemoryStore) CreateSchedule(_ context.Context, e *model.ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.schedules {
		if existing.UserID == e.UserID && existing.Date.Equal(e.Date) && existing.TimeSlot == e.TimeSlot {
			return ErrSlotTaken
		}
	}
	s.schedules[e.ID] = copySchedule(e)
	return nil
}

func (s *MemoryStore) GetSchedule(_ context.Context, id string) (*model.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copySchedule(e), nil
}

func (s *MemoryStore) ListSchedulesByOwner(_ context.Context, ownerID string, from, to time.Time) ([]model.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.ScheduleEntry
	for _, e := range s.schedules {
		if e.UserID != ownerID {
			continue
		}
		if !from.IsZero() && e.Date.Before(from) {
			continue
		}
		if !to.IsZero() && e.Date.After(to) {
			continue
		}
		result = append(result, *copySchedule(e))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (s *MemoryStore) SetScheduleCompleted(_ context.Context, id string, completed bool, completedAt *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.schedules[id]
	if !ok {
		return false, ErrNotFound
	}
	previous := e.Completed
	e.Completed = completed
	e.CompletedAt = copyTime(completedAt)
	return previous, nil
}

func (s *MemoryStore) DeleteScheduleIfNoActiveBets(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[id]; !ok {
		return ErrNotFound
	}
	for _, b := range s.bets {
		if b.ScheduleID == id && b.Active() {
			return ErrActiveBets
		}
	}
	delete(s.schedules, id)
	return nil
}

func (s *MemoryStore) ListOverdueSchedules(_ context.Context, before time.Time) ([]model.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	withActive := make(map[string]bool)
	for _, b := range s.bets {
		if b.Active() {
			withActive[b.ScheduleID] = true
		}
	}

	var result []model.ScheduleEntry
	for _, e := range s.schedules {
		if e.Completed || !e.Date.Before(before) || !withActive[e.ID] {
			continue
		}
		result = append(result, *copySchedule(e))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

// --- Bets ---

// CreateBet checks the entry state and duplicates and inserts under one write
// lock, so a concurrent toggle or delete cannot land between check and insert.
func (s *MemoryStore) CreateBet(_ context.Context, b *model.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.schedules[b.ScheduleID]
	if !ok {
		return ErrNotFound
	}
	if e.Completed {
		return ErrScheduleCompleted
	}
	for _, existing := range s.bets {
		if existing.PlacerID == b.PlacerID && existing.ScheduleID == b.ScheduleID && existing.Active() {
			return ErrDuplicateActiveBet
		}
	}
	s.bets[b.ID] = copyBet(b)
	return nil
}

func (s *MemoryStore) GetBet(_ context.Context, id string) (*model.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBet(b), nil
}

func (s *MemoryStore) ListBetsBySchedule(_ context.Context, scheduleID string, activeOnly bool) ([]model.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := s.filterBets(func(b *model.Bet) bool {
		return b.ScheduleID == scheduleID && (!activeOnly || b.Active())
	})
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *MemoryStore) ListBetsByPlacer(_ context.Context, placerID string) ([]model.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := s.filterBets(func(b *model.Bet) bool { return b.PlacerID == placerID })
	sortNewestFirst(result)
	return result, nil
}

func (s *MemoryStore) ListBetsByTarget(_ context.Context, targetID string) ([]model.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := s.filterBets(func(b *model.Bet) bool { return b.TargetID == targetID })
	sortNewestFirst(result)
	return result, nil
}

// ResolveBet is the compare-and-swap on the ACTIVE state.
func (s *MemoryStore) ResolveBet(_ context.Context, id string, res model.Resolution) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bets[id]
	if !ok {
		return false, ErrNotFound
	}
	if !b.Active() {
		return false, nil
	}
	r := res
	b.Resolution = &r
	return true, nil
}

// --- Notifications ---

func (s *MemoryStore) InsertNotification(_ context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *n
	s.notifications = append(s.notifications, &copy)
	return nil
}

func (s *MemoryStore) ListNotifications(_ context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Notification
	// Newest are at the tail.
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if n.UserID != userID || (unreadOnly && n.Read) {
			continue
		}
		result = append(result, *n)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *MemoryStore) SetNotificationsRead(_ context.Context, userID string, ids []string, read bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	changed := 0
	for _, n := range s.notifications {
		if n.UserID == userID && want[n.ID] && n.Read != read {
			n.Read = read
			changed++
		}
	}
	return changed, nil
}

func (s *MemoryStore) MarkAllNotificationsRead(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, n := range s.notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			changed++
		}
	}
	return changed, nil
}

func (s *MemoryStore) CountUnreadNotifications(_ context.Context, userID string, typ model.NotificationType) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notifications {
		if n.UserID == userID && !n.Read && (typ == "" || n.Type == typ) {
			count++
		}
	}
	return count, nil
}

// --- helpers (callers hold s.mu) ---

func (s *MemoryStore) filterBets(keep func(*model.Bet) bool) []model.Bet {
	var result []model.Bet
	for _, b := range s.bets {
		if keep(b) {
			result = append(result, *copyBet(b))
		}
	}
	return result
}

func sortNewestFirst(bets []model.Bet) {
	sort.Slice(bets, func(i, j int) bool { return bets[i].CreatedAt.After(bets[j].CreatedAt) })
}

func copySchedule(e *model.ScheduleEntry) *model.ScheduleEntry {
	c := *e
	c.CompletedAt = copyTime(e.CompletedAt)
	return &c
}

func copyBet(b *model.Bet) *model.Bet {
	c := *b
	if b.Resolution != nil {
		r := *b.Resolution
		c.Resolution = &r
	}
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
