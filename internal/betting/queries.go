package betting

import (
	"context"
	"errors"
	"fmt"

	"github.com/fitbet/bet-engine/internal/model"
	"github.com/fitbet/bet-engine/internal/store"
)

const (
	DefaultNotificationLimit = 20
	MaxNotificationLimit     = 100
)

// BetsOverview is a user's bets from both sides, newest first.
type BetsOverview struct {
	BetsPlaced   []model.BetView `json:"betsPlaced"`
	BetsReceived []model.BetView `json:"betsReceived"`
}

// ListBets returns the bets userID placed and the bets placed on userID.
func (e *Engine) ListBets(ctx context.Context, userID string) (*BetsOverview, error) {
	placed, err := e.store.ListBetsByPlacer(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list placed bets: %w", err)
	}
	received, err := e.store.ListBetsByTarget(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list received bets: %w", err)
	}

	users := newUserCache(e.store)
	schedules := make(map[string]*model.ScheduleEntry)
	schedule := func(id string) *model.ScheduleRef {
		entry, ok := schedules[id]
		if !ok {
			var err error
			entry, err = e.store.GetSchedule(ctx, id)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				e.log.Warn("schedule lookup failed", "schedule_id", id, "err", err)
			}
			schedules[id] = entry
		}
		return scheduleRef(entry)
	}

	out := &BetsOverview{
		BetsPlaced:   make([]model.BetView, 0, len(placed)),
		BetsReceived: make([]model.BetView, 0, len(received)),
	}
	for _, b := range placed {
		out.BetsPlaced = append(out.BetsPlaced, model.BetView{
			Bet: b, Target: users.ref(ctx, b.TargetID), Schedule: schedule(b.ScheduleID),
		})
	}
	for _, b := range received {
		out.BetsReceived = append(out.BetsReceived, model.BetView{
			Bet: b, Placer: users.ref(ctx, b.PlacerID), Schedule: schedule(b.ScheduleID),
		})
	}
	return out, nil
}

// NotificationPage is one page of a user's notifications.
type NotificationPage struct {
	Notifications []model.Notification `json:"notifications"`
	UnreadCount   int                  `json:"unreadCount"`
}

// ListNotifications returns the newest notifications for userID. limit is
// clamped to [1, MaxNotificationLimit]; zero or less selects the default.
func (e *Engine) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) (*NotificationPage, error) {
	switch {
	case limit <= 0:
		limit = DefaultNotificationLimit
	case limit > MaxNotificationLimit:
		limit = MaxNotificationLimit
	}

	list, err := e.store.ListNotifications(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	unread, err := e.store.CountUnreadNotifications(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("count unread notifications: %w", err)
	}
	if list == nil {
		list = []model.Notification{}
	}
	return &NotificationPage{Notifications: list, UnreadCount: unread}, nil
}

// MarkNotifications sets the read flag on the recipient's own notifications.
func (e *Engine) MarkNotifications(ctx context.Context, userID string, ids []string, read bool) (int, error) {
	if len(ids) == 0 {
		return 0, e.rejected(reject(CodeInvalidInput, "notificationIds must be a non-empty array"))
	}
	n, err := e.store.SetNotificationsRead(ctx, userID, ids, read)
	if err != nil {
		return 0, fmt.Errorf("mark notifications: %w", err)
	}
	return n, nil
}

// MarkAllNotificationsRead marks every unread notification of userID read.
func (e *Engine) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	n, err := e.store.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return n, nil
}
