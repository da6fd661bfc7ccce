package betting

import (
	"fmt"

	"github.com/fitbet/bet-engine/internal/model"
)

func predictionVerb(willComplete bool) string {
	if willComplete {
		return "complete"
	}
	return "miss"
}

func outcomeVerb(completed bool) string {
	if completed {
		return "completed"
	}
	return "missed"
}

func newBetPlacedNotification(b *model.Bet, entry *model.ScheduleEntry, placer *model.User, currency string) *model.Notification {
	return &model.Notification{
		UserID: b.TargetID,
		Type:   model.NotifyNewBetPlaced,
		Title:  "New Bet Placed!",
		Message: fmt.Sprintf("%s placed a %s %s bet on your %s workout. They predict you will %s it.",
			placer.Name, b.Amount, currency, entry.ExerciseType, predictionVerb(b.Prediction)),
		Data: map[string]any{
			"betId":        b.ID,
			"placerName":   placer.Name,
			"amount":       b.Amount.String(),
			"prediction":   b.Prediction,
			"exerciseType": entry.ExerciseType,
			"scheduleId":   entry.ID,
		},
	}
}

// newOutcomeNotification tells the placer whether the bet was won or lost.
func newOutcomeNotification(b model.Bet, entry *model.ScheduleEntry, target *model.User, completed bool, currency string) *model.Notification {
	n := &model.Notification{
		UserID: b.PlacerID,
		Data: map[string]any{
			"betId":        b.ID,
			"amount":       b.Amount.String(),
			"scheduleId":   entry.ID,
			"exerciseType": entry.ExerciseType,
			"opponentName": target.Name,
			"completed":    completed,
		},
	}
	if b.Resolution.Outcome == model.OutcomeWon {
		n.Type = model.NotifyBetWon
		n.Title = "Bet Won!"
		n.Message = fmt.Sprintf("You won %s %s! %s %s their %s workout, just as you predicted.",
			b.Amount, currency, target.Name, outcomeVerb(completed), entry.ExerciseType)
	} else {
		n.Type = model.NotifyBetLost
		n.Title = "Bet Lost"
		n.Message = fmt.Sprintf("You lost %s %s. %s %s their %s workout.",
			b.Amount, currency, target.Name, outcomeVerb(completed), entry.ExerciseType)
	}
	return n
}

// newPaymentDueNotification tells the target they owe the placer the stake.
func newPaymentDueNotification(b model.Bet, entry *model.ScheduleEntry, placer *model.User, currency string) *model.Notification {
	return &model.Notification{
		UserID: b.TargetID,
		Type:   model.NotifyPaymentDue,
		Title:  "Payment Due",
		Message: fmt.Sprintf("You missed your %s workout. Please pay %s %s to %s.",
			entry.ExerciseType, b.Amount, currency, placer.Name),
		Data: map[string]any{
			"betId":      b.ID,
			"amount":     b.Amount.String(),
			"payeeName":  placer.Name,
			"payeeEmail": placer.Email,
			"scheduleId": entry.ID,
		},
	}
}
