package betting

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fitbet/bet-engine/internal/metrics"
	"github.com/fitbet/bet-engine/internal/model"
	"github.com/fitbet/bet-engine/internal/store"
)

// PlaceBetRequest is the JSON body for POST /bets. Pointers distinguish an
// absent prediction or amount from false or zero.
type PlaceBetRequest struct {
	TargetUserID string           `json:"targetUserId" validate:"required"`
	ScheduleID   string           `json:"scheduleId" validate:"required"`
	Prediction   *bool            `json:"prediction" validate:"required"`
	Amount       *decimal.Decimal `json:"amount" validate:"required"`
}

// PlaceBet validates and records a new ACTIVE bet by placerID, then tells
// the target about it. The checks run in a fixed order and the first failure
// decides the rejection.
func (e *Engine) PlaceBet(ctx context.Context, placerID string, req PlaceBetRequest) (*model.BetView, error) {
	if err := e.validate.Struct(req); err != nil || req.Amount.IsZero() {
		return nil, e.rejected(ErrInvalidInput)
	}
	amount := *req.Amount
	if amount.LessThan(MinStake) || amount.GreaterThan(MaxStake) {
		return nil, e.rejected(ErrInvalidStake)
	}
	if placerID == req.TargetUserID {
		return nil, e.rejected(ErrSelfBet)
	}

	entry, err := e.loadSchedule(ctx, req.ScheduleID)
	if err != nil {
		return nil, e.rejected(err)
	}
	if entry.UserID != req.TargetUserID {
		return nil, e.rejected(ErrOwnerMismatch)
	}
	if entry.Completed {
		return nil, e.rejected(ErrAlreadyCompleted)
	}
	now := e.clock.Now()
	if entry.Date.Before(now) {
		return nil, e.rejected(ErrExercisePast)
	}

	bet := &model.Bet{
		ID:         uuid.New().String(),
		PlacerID:   placerID,
		TargetID:   req.TargetUserID,
		ScheduleID: entry.ID,
		Amount:     amount,
		Prediction: *req.Prediction,
		CreatedAt:  now,
	}
	// The checks above ran on a snapshot. The store re-checks the entry and
	// the one-ACTIVE-bet rule atomically with the insert, in case a toggle or
	// delete landed in between.
	switch err := e.store.CreateBet(ctx, bet); {
	case errors.Is(err, store.ErrDuplicateActiveBet):
		return nil, e.rejected(ErrDuplicateBet)
	case errors.Is(err, store.ErrScheduleCompleted):
		return nil, e.rejected(ErrAlreadyCompleted)
	case errors.Is(err, store.ErrNotFound):
		return nil, e.rejected(ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("create bet: %w", err)
	}
	metrics.BetsPlaced.Inc()

	users := newUserCache(e.store)
	placer := users.get(ctx, placerID)

	e.log.Info("bet placed",
		"bet_id", bet.ID,
		"placer_id", placerID,
		"target_id", bet.TargetID,
		"schedule_id", entry.ID,
		"amount", amount.String(),
		"prediction", bet.Prediction,
	)

	// Best effort: the bet stands even if the notification is lost.
	n := newBetPlacedNotification(bet, entry, placer, e.currency)
	if err := e.sink.Emit(ctx, n); err != nil {
		e.log.Error("new bet notification failed", "bet_id", bet.ID, "err", err)
	}

	return &model.BetView{
		Bet:      *bet,
		Placer:   users.ref(ctx, placerID),
		Target:   users.ref(ctx, bet.TargetID),
		Schedule: scheduleRef(entry),
	}, nil
}
