package betting

import (
	"context"
	"fmt"
	"time"

	"github.com/fitbet/bet-engine/internal/metrics"
	"github.com/fitbet/bet-engine/internal/model"
)

// Trigger names what started a resolution.
type Trigger string

const (
	TriggerToggle Trigger = "toggle"
	TriggerSweep  Trigger = "sweep"
)

// Resolve settles an ACTIVE bet against the ground truth: the bet is WON
// exactly when the prediction matches whether the exercise was completed.
// Both triggers go through this function.
func Resolve(b model.Bet, completed bool, at time.Time) (model.Bet, error) {
	if !b.Active() {
		return b, ErrAlreadyResolved
	}
	outcome := model.OutcomeLost
	if b.Prediction == completed {
		outcome = model.OutcomeWon
	}
	b.Resolution = &model.Resolution{Outcome: outcome, ResolvedAt: at}
	return b, nil
}

// Failure is one bet or schedule that could not be fully processed.
type Failure struct {
	ScheduleID string `json:"scheduleId"`
	BetID      string `json:"betId,omitempty"`
	Stage      string `json:"stage"`
	Error      string `json:"error"`
}

// Report counts the work done by one or more resolution batches.
type Report struct {
	SchedulesProcessed   int       `json:"schedulesProcessed"`
	BetsResolved         int       `json:"betsResolved"`
	BetsSkipped          int       `json:"betsSkipped"`
	NotificationsCreated int       `json:"notificationsCreated"`
	Failures             []Failure `json:"failures,omitempty"`
}

func (r *Report) merge(o Report) {
	r.SchedulesProcessed += o.SchedulesProcessed
	r.BetsResolved += o.BetsResolved
	r.BetsSkipped += o.BetsSkipped
	r.NotificationsCreated += o.NotificationsCreated
	r.Failures = append(r.Failures, o.Failures...)
}

func (r *Report) fail(scheduleID, betID, stage string, err error) {
	r.Failures = append(r.Failures, Failure{ScheduleID: scheduleID, BetID: betID, Stage: stage, Error: err.Error()})
}

// ResolveSchedule settles every ACTIVE bet on one schedule entry using
// completed as the ground truth. It holds the entry's resolution lock for the
// whole batch; a caller that loses the race finds nothing ACTIVE and returns
// an empty report. Each bet is processed independently: a failed write or
// notification is recorded in the report and its siblings carry on.
func (e *Engine) ResolveSchedule(ctx context.Context, scheduleID string, completed bool, trigger Trigger) (Report, error) {
	var report Report

	release, err := e.locker.Lock(ctx, "schedule:"+scheduleID)
	if err != nil {
		return report, fmt.Errorf("lock schedule %s: %w", scheduleID, err)
	}
	defer release()

	entry, err := e.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return report, fmt.Errorf("load schedule %s: %w", scheduleID, err)
	}
	// A completion recorded after the sweep listed this entry wins; the
	// toggle that recorded it resolves the bets itself.
	if trigger == TriggerSweep && entry.Completed {
		e.log.Info("sweep skipped completed schedule", "schedule_id", scheduleID)
		return report, nil
	}

	bets, err := e.store.ListBetsBySchedule(ctx, scheduleID, true)
	if err != nil {
		return report, fmt.Errorf("list active bets for %s: %w", scheduleID, err)
	}
	if len(bets) == 0 {
		return report, nil
	}
	report.SchedulesProcessed = 1

	now := e.clock.Now()
	users := newUserCache(e.store)

	for _, bet := range bets {
		resolved, err := Resolve(bet, completed, now)
		if err != nil {
			report.BetsSkipped++
			continue
		}

		ok, err := e.store.ResolveBet(ctx, bet.ID, *resolved.Resolution)
		if err != nil {
			metrics.ResolutionFailures.WithLabelValues(string(trigger)).Inc()
			e.log.Error("resolve bet failed", "schedule_id", scheduleID, "bet_id", bet.ID, "err", err)
			report.fail(scheduleID, bet.ID, "resolve", err)
			continue
		}
		if !ok {
			// Another resolver settled it first.
			report.BetsSkipped++
			continue
		}
		report.BetsResolved++
		metrics.BetsResolved.WithLabelValues(string(trigger), string(resolved.Resolution.Outcome)).Inc()

		e.log.Info("bet resolved",
			"schedule_id", scheduleID,
			"bet_id", bet.ID,
			"trigger", trigger,
			"completed", completed,
			"outcome", resolved.Resolution.Outcome,
		)

		e.emitResolution(ctx, &report, resolved, entry, completed, users)
	}

	return report, nil
}

// emitResolution sends the placer's WON/LOST notice and, for a missed
// exercise, the target's PAYMENT_DUE notice. Failures are logged and counted.
func (e *Engine) emitResolution(ctx context.Context, report *Report, b model.Bet, entry *model.ScheduleEntry, completed bool, users *userCache) {
	notes := []*model.Notification{
		newOutcomeNotification(b, entry, users.get(ctx, b.TargetID), completed, e.currency),
	}
	if !completed {
		notes = append(notes, newPaymentDueNotification(b, entry, users.get(ctx, b.PlacerID), e.currency))
	}

	for _, n := range notes {
		if err := e.sink.Emit(ctx, n); err != nil {
			e.log.Error("resolution notification failed",
				"schedule_id", entry.ID,
				"bet_id", b.ID,
				"type", n.Type,
				"err", err,
			)
			report.fail(entry.ID, b.ID, "notify:"+string(n.Type), err)
			continue
		}
		report.NotificationsCreated++
	}
}
