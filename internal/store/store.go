// Package store defines the persistence interface for the bet engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fitbet/bet-engine/internal/model"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrSlotTaken is returned when the owner already has an entry for the
	// same date and time slot.
	ErrSlotTaken = errors.New("store: schedule slot taken")

	// ErrDuplicateActiveBet is returned when the placer already holds an
	// ACTIVE bet on the schedule entry.
	ErrDuplicateActiveBet = errors.New("store: duplicate active bet")

	// ErrScheduleCompleted is returned when a bet targets an entry that is
	// already marked completed.
	ErrScheduleCompleted = errors.New("store: schedule already completed")

	// ErrActiveBets is returned when a schedule entry cannot be deleted
	// because at least one bet on it is still ACTIVE.
	ErrActiveBets = errors.New("store: schedule has active bets")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- User directory ---

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// ListUsers returns every user ordered by name.
	ListUsers(ctx context.Context) ([]model.User, error)

	// UpsertUser inserts a user or updates the one with the same email.
	// The stored ID is written back into u.
	UpsertUser(ctx context.Context, u *model.User) error

	// --- Schedule entries ---

	// CreateSchedule persists a new entry. Returns ErrSlotTaken when the
	// (user, date, slot) triple is already used.
	CreateSchedule(ctx context.Context, e *model.ScheduleEntry) error

	// GetSchedule retrieves an entry by ID.
	GetSchedule(ctx context.Context, id string) (*model.ScheduleEntry, error)

	// ListSchedulesByOwner returns the owner's entries in date order.
	// A zero from or to leaves that side of the range open.
	ListSchedulesByOwner(ctx context.Context, ownerID string, from, to time.Time) ([]model.ScheduleEntry, error)

	// SetScheduleCompleted atomically writes the completed flag and returns
	// the value it held before the write.
	SetScheduleCompleted(ctx context.Context, id string, completed bool, completedAt *time.Time) (previous bool, err error)

	// DeleteScheduleIfNoActiveBets removes the entry only when no ACTIVE bet
	// references it; otherwise returns ErrActiveBets. Resolved bets are kept.
	DeleteScheduleIfNoActiveBets(ctx context.Context, id string) error

	// ListOverdueSchedules returns uncompleted entries dated before the given
	// instant that still have at least one ACTIVE bet, oldest first.
	ListOverdueSchedules(ctx context.Context, before time.Time) ([]model.ScheduleEntry, error)

	// --- Bet ledger ---

	// CreateBet persists a new ACTIVE bet while the entry exists and is not
	// completed, checked atomically with the insert. Returns ErrNotFound,
	// ErrScheduleCompleted, or ErrDuplicateActiveBet when the placer already
	// holds an ACTIVE bet on the same entry.
	CreateBet(ctx context.Context, b *model.Bet) error

	// GetBet retrieves a bet by ID.
	GetBet(ctx context.Context, id string) (*model.Bet, error)

	// ListBetsBySchedule returns the bets on an entry, oldest first.
	ListBetsBySchedule(ctx context.Context, scheduleID string, activeOnly bool) ([]model.Bet, error)

	// ListBetsByPlacer returns the bets a user placed, newest first.
	ListBetsByPlacer(ctx context.Context, placerID string) ([]model.Bet, error)

	// ListBetsByTarget returns the bets placed on a user, newest first.
	ListBetsByTarget(ctx context.Context, targetID string) ([]model.Bet, error)

	// ResolveBet records the resolution only if the bet is still ACTIVE.
	// It reports false when another resolver got there first.
	ResolveBet(ctx context.Context, id string, res model.Resolution) (bool, error)

	// --- Notifications ---

	// InsertNotification appends a notification record.
	InsertNotification(ctx context.Context, n *model.Notification) error

	// ListNotifications returns a user's notifications, newest first.
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error)

	// SetNotificationsRead flips the read flag on the given notifications,
	// ignoring ids that belong to another user. Returns the rows changed.
	SetNotificationsRead(ctx context.Context, userID string, ids []string, read bool) (int, error)

	// MarkAllNotificationsRead marks every unread notification of a user read.
	MarkAllNotificationsRead(ctx context.Context, userID string) (int, error)

	// CountUnreadNotifications counts unread notifications, optionally of a
	// single type (empty means any).
	CountUnreadNotifications(ctx context.Context, userID string, typ model.NotificationType) (int, error)
}
