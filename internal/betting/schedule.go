package betting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fitbet/bet-engine/internal/model"
	"github.com/fitbet/bet-engine/internal/store"
)

// CreateScheduleRequest is the JSON body for POST /schedules.
type CreateScheduleRequest struct {
	Date         time.Time      `json:"date" validate:"required"`
	ExerciseType string         `json:"exerciseType" validate:"required,max=100"`
	TimeSlot     model.TimeSlot `json:"timeSlot" validate:"required,oneof=morning afternoon evening"`
}

// CreateSchedule adds an exercise entry for ownerID.
func (e *Engine) CreateSchedule(ctx context.Context, ownerID string, req CreateScheduleRequest) (*model.ScheduleEntry, error) {
	if err := e.validate.Struct(req); err != nil {
		return nil, e.rejected(reject(CodeInvalidInput, "date, exerciseType and a valid timeSlot are required"))
	}

	entry := &model.ScheduleEntry{
		ID:           uuid.New().String(),
		UserID:       ownerID,
		Date:         req.Date.UTC(),
		ExerciseType: req.ExerciseType,
		TimeSlot:     req.TimeSlot,
		CreatedAt:    e.clock.Now(),
	}
	switch err := e.store.CreateSchedule(ctx, entry); {
	case errors.Is(err, store.ErrSlotTaken):
		return nil, e.rejected(ErrSlotTaken)
	case err != nil:
		return nil, fmt.Errorf("create schedule: %w", err)
	}

	e.log.Info("schedule created", "schedule_id", entry.ID, "user_id", ownerID, "date", entry.Date)
	return entry, nil
}

// ListSchedules returns the owner's entries in date order, each with every
// bet placed on it. A zero from or to leaves that end open.
func (e *Engine) ListSchedules(ctx context.Context, ownerID string, from, to time.Time) ([]model.ScheduleWithBets, error) {
	entries, err := e.store.ListSchedulesByOwner(ctx, ownerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}

	users := newUserCache(e.store)
	result := make([]model.ScheduleWithBets, 0, len(entries))
	for i := range entries {
		bets, err := e.store.ListBetsBySchedule(ctx, entries[i].ID, false)
		if err != nil {
			return nil, fmt.Errorf("list bets for schedule %s: %w", entries[i].ID, err)
		}
		views := make([]model.BetView, 0, len(bets))
		for _, b := range bets {
			views = append(views, model.BetView{Bet: b, Placer: users.ref(ctx, b.PlacerID)})
		}
		result = append(result, model.ScheduleWithBets{ScheduleEntry: entries[i], Bets: views})
	}
	return result, nil
}

// ToggleResult is the outcome of SetCompleted.
type ToggleResult struct {
	Schedule   *model.ScheduleEntry `json:"schedule"`
	Changed    bool                 `json:"changed"`
	Resolution Report               `json:"resolution"`
}

// SetCompleted records the owner's completion flag. Only a real transition
// fires resolution, synchronously, with the new value as ground truth;
// writing the value already held is a no-op. The flag can change while the
// entry's calendar day is today or later.
func (e *Engine) SetCompleted(ctx context.Context, requesterID, scheduleID string, completed bool, completedAt *time.Time) (*ToggleResult, error) {
	entry, err := e.loadSchedule(ctx, scheduleID)
	if err != nil {
		return nil, e.rejected(err)
	}
	if entry.UserID != requesterID {
		return nil, e.rejected(ErrForbidden)
	}

	now := e.clock.Now()
	if calendarDay(entry.Date, e.loc).Before(calendarDay(now, e.loc)) {
		return nil, e.rejected(ErrToggleWindowClosed)
	}

	var at *time.Time
	if completed {
		at = completedAt
		if at == nil {
			at = &now
		}
	}

	previous, err := e.store.SetScheduleCompleted(ctx, scheduleID, completed, at)
	if errors.Is(err, store.ErrNotFound) {
		return nil, e.rejected(ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("set completed: %w", err)
	}
	entry.Completed = completed
	entry.CompletedAt = at

	result := &ToggleResult{Schedule: entry, Changed: previous != completed}
	if !result.Changed {
		return result, nil
	}

	e.log.Info("schedule completion changed", "schedule_id", scheduleID, "completed", completed)

	// The flag is already committed; finish resolving even if the client goes away.
	report, err := e.ResolveSchedule(context.WithoutCancel(ctx), scheduleID, completed, TriggerToggle)
	result.Resolution = report
	if err != nil {
		return result, fmt.Errorf("resolve schedule %s: %w", scheduleID, err)
	}
	return result, nil
}

// DeleteSchedule removes an entry owned by requesterID. It is refused while
// any bet on the entry is ACTIVE; resolved bets do not block it.
func (e *Engine) DeleteSchedule(ctx context.Context, scheduleID, requesterID string) error {
	entry, err := e.loadSchedule(ctx, scheduleID)
	if err != nil {
		return e.rejected(err)
	}
	if entry.UserID != requesterID {
		return e.rejected(ErrForbidden)
	}

	switch err := e.store.DeleteScheduleIfNoActiveBets(ctx, scheduleID); {
	case errors.Is(err, store.ErrActiveBets):
		return e.rejected(ErrBlockedByActive)
	case errors.Is(err, store.ErrNotFound):
		return e.rejected(ErrNotFound)
	case err != nil:
		return fmt.Errorf("delete schedule: %w", err)
	}

	e.log.Info("schedule deleted", "schedule_id", scheduleID, "user_id", requesterID)
	return nil
}

// calendarDay truncates t to midnight of its date in loc.
func calendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
