// Package model defines the core domain types shared across the bet engine.
// Stake amounts use shopspring/decimal, never float64.
package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// User is a read-only entry of the user directory.
type User struct {
	ID    string `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Email string `json:"email" db:"email"`
	Image string `json:"image,omitempty" db:"image"`
}

// TimeSlot tags the part of the day a workout is planned for.
type TimeSlot string

const (
	SlotMorning   TimeSlot = "morning"
	SlotAfternoon TimeSlot = "afternoon"
	SlotEvening   TimeSlot = "evening"
)

// Valid reports whether s is one of the known slots.
func (s TimeSlot) Valid() bool {
	switch s {
	case SlotMorning, SlotAfternoon, SlotEvening:
		return true
	}
	return false
}

// ScheduleEntry is one planned exercise occurrence. At most one entry exists
// per (UserID, Date, TimeSlot).
type ScheduleEntry struct {
	ID           string     `json:"id" db:"id"`
	UserID       string     `json:"userId" db:"user_id"`
	Date         time.Time  `json:"date" db:"date"`
	ExerciseType string     `json:"exerciseType" db:"exercise_type"`
	TimeSlot     TimeSlot   `json:"timeSlot" db:"time_slot"`
	Completed    bool       `json:"completed" db:"completed"`
	CompletedAt  *time.Time `json:"completedAt,omitempty" db:"completed_at"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
}

// BetStatus is the lifecycle state of a bet.
type BetStatus string

const (
	BetActive   BetStatus = "ACTIVE"
	BetResolved BetStatus = "RESOLVED"
)

// Outcome is the settled result of a resolved bet.
type Outcome string

const (
	OutcomeWon  Outcome = "WON"
	OutcomeLost Outcome = "LOST"
)

// Resolution is present exactly when a bet is resolved. It is written once
// and never changed afterwards.
type Resolution struct {
	Outcome    Outcome   `json:"result"`
	ResolvedAt time.Time `json:"resolvedAt"`
}

// Bet is a stake placed by PlacerID on TargetID completing ScheduleID.
// A nil Resolution means the bet is ACTIVE.
type Bet struct {
	ID         string          `json:"id" db:"id"`
	PlacerID   string          `json:"placerId" db:"placer_id"`
	TargetID   string          `json:"targetId" db:"target_id"`
	ScheduleID string          `json:"scheduleId" db:"schedule_id"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	Prediction bool            `json:"prediction" db:"prediction"` // true = "will complete"
	CreatedAt  time.Time       `json:"createdAt" db:"created_at"`
	Resolution *Resolution     `json:"-"`
}

// Status derives the lifecycle state from the presence of a resolution.
func (b Bet) Status() BetStatus {
	if b.Resolution == nil {
		return BetActive
	}
	return BetResolved
}

// Active reports whether the bet still awaits resolution.
func (b Bet) Active() bool { return b.Resolution == nil }

type betJSON struct {
	ID         string          `json:"id"`
	PlacerID   string          `json:"placerId"`
	TargetID   string          `json:"targetId"`
	ScheduleID string          `json:"scheduleId"`
	Amount     decimal.Decimal `json:"amount"`
	Prediction bool            `json:"prediction"`
	Status     BetStatus       `json:"status"`
	Result     *Outcome        `json:"result"`
	CreatedAt  time.Time       `json:"createdAt"`
	ResolvedAt *time.Time      `json:"resolvedAt"`
}

// MarshalJSON flattens the resolution into status/result/resolvedAt.
func (b Bet) MarshalJSON() ([]byte, error) {
	out := betJSON{
		ID:         b.ID,
		PlacerID:   b.PlacerID,
		TargetID:   b.TargetID,
		ScheduleID: b.ScheduleID,
		Amount:     b.Amount,
		Prediction: b.Prediction,
		Status:     b.Status(),
		CreatedAt:  b.CreatedAt,
	}
	if b.Resolution != nil {
		outcome := b.Resolution.Outcome
		at := b.Resolution.ResolvedAt
		out.Result = &outcome
		out.ResolvedAt = &at
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the flattened form produced by MarshalJSON.
func (b *Bet) UnmarshalJSON(data []byte) error {
	var in betJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*b = Bet{
		ID:         in.ID,
		PlacerID:   in.PlacerID,
		TargetID:   in.TargetID,
		ScheduleID: in.ScheduleID,
		Amount:     in.Amount,
		Prediction: in.Prediction,
		CreatedAt:  in.CreatedAt,
	}
	if in.Status == BetResolved && in.Result != nil && in.ResolvedAt != nil {
		b.Resolution = &Resolution{Outcome: *in.Result, ResolvedAt: *in.ResolvedAt}
	}
	return nil
}

// UserRef is the display subset of a user embedded in responses.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ScheduleRef is the display subset of a schedule entry embedded in bet views.
type ScheduleRef struct {
	ID           string    `json:"id"`
	ExerciseType string    `json:"exerciseType"`
	Date         time.Time `json:"date"`
	TimeSlot     TimeSlot  `json:"timeSlot"`
	Completed    bool      `json:"completed"`
}

// BetView is a bet with denormalized placer/target/schedule fields.
type BetView struct {
	Bet
	Placer   *UserRef     `json:"placer,omitempty"`
	Target   *UserRef     `json:"target,omitempty"`
	Schedule *ScheduleRef `json:"schedule,omitempty"`
}

// MarshalJSON merges the embedded bet's flattened form with the refs.
func (v BetView) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(v.Bet)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	for key, ref := range map[string]any{"placer": v.Placer, "target": v.Target, "schedule": v.Schedule} {
		switch r := ref.(type) {
		case *UserRef:
			if r == nil {
				continue
			}
		case *ScheduleRef:
			if r == nil {
				continue
			}
		}
		raw, err := json.Marshal(ref)
		if err != nil {
			return nil, err
		}
		fields[key] = raw
	}
	return json.Marshal(fields)
}

// ScheduleWithBets is a schedule entry together with every bet placed on it.
type ScheduleWithBets struct {
	ScheduleEntry
	Bets []BetView `json:"bets"`
}

// NotificationType enumerates the user-facing events written by the engine.
type NotificationType string

const (
	NotifyNewBetPlaced NotificationType = "NEW_BET_PLACED"
	NotifyBetWon       NotificationType = "BET_WON"
	NotifyBetLost      NotificationType = "BET_LOST"
	NotifyPaymentDue   NotificationType = "PAYMENT_DUE"
)

// Notification is an append-only record for a single recipient. Only Read
// changes after creation.
type Notification struct {
	ID        string           `json:"id" db:"id"`
	UserID    string           `json:"userId" db:"user_id"`
	Type      NotificationType `json:"type" db:"type"`
	Title     string           `json:"title" db:"title"`
	Message   string           `json:"message" db:"message"`
	Data      map[string]any   `json:"data" db:"data"`
	Read      bool             `json:"read" db:"read"`
	CreatedAt time.Time        `json:"createdAt" db:"created_at"`
}
