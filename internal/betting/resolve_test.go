package betting_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fitbet/bet-engine/internal/betting"
	"github.com/fitbet/bet-engine/internal/lock"
	"github.com/fitbet/bet-engine/internal/model"
)

func TestResolve_OutcomeGrid(t *testing.T) {
	tests := []struct {
		prediction bool
		completed  bool
		want       model.Outcome
	}{
		{prediction: true, completed: true, want: model.OutcomeWon},
		{prediction: true, completed: false, want: model.OutcomeLost},
		{prediction: false, completed: true, want: model.OutcomeLost},
		{prediction: false, completed: false, want: model.OutcomeWon},
	}

	for _, tt := range tests {
		bet := model.Bet{ID: "b1", Amount: d(100), Prediction: tt.prediction}
		got, err := betting.Resolve(bet, tt.completed, now)
		if err != nil {
			t.Fatalf("prediction=%v completed=%v: %v", tt.prediction, tt.completed, err)
		}
		if got.Status() != model.BetResolved {
			t.Errorf("prediction=%v completed=%v: expected RESOLVED, got %s", tt.prediction, tt.completed, got.Status())
		}
		if got.Resolution.Outcome != tt.want {
			t.Errorf("prediction=%v completed=%v: expected %s, got %s", tt.prediction, tt.completed, tt.want, got.Resolution.Outcome)
		}
		if !got.Resolution.ResolvedAt.Equal(now) {
			t.Errorf("resolvedAt: expected %v, got %v", now, got.Resolution.ResolvedAt)
		}
		if !bet.Active() {
			t.Error("Resolve must not mutate its input")
		}
	}
}

func TestResolve_AlreadyResolved(t *testing.T) {
	first, err := betting.Resolve(model.Bet{ID: "b1", Prediction: true}, true, now)
	if err != nil {
		t.Fatal(err)
	}

	again, err := betting.Resolve(first, false, now.Add(time.Hour))
	if !errors.Is(err, betting.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
	if again.Resolution.Outcome != model.OutcomeWon || !again.Resolution.ResolvedAt.Equal(now) {
		t.Errorf("resolution changed: %+v", again.Resolution)
	}
}

// --- Trigger A: completion toggle ---

func TestSetCompleted_ResolvesActiveBets(t *testing.T) {
	env := newTestEnv(t)
	seedEntry(t, env, "s1", "alice", now.Add(6*time.Hour))
	yes := placeBet(t, env, "bob", "alice", "s1", true, 100)
	no := placeBet(t, env, "carol", "alice", "s1", false, 300)

	res, err := env.eng.SetCompleted(context.Background(), "alice", "s1", true, nil)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !res.Changed {
		t.Error("expected Changed")
	}
	if !res.Schedule.Completed || res.Schedule.CompletedAt == nil || !res.Schedule.CompletedAt.Equal(now) {
		t.Errorf("unexpected schedule state: %+v", res.Schedule)
	}
	if res.Resolution.BetsResolved != 2 || res.Resolution.SchedulesProcessed != 1 {
		t.Errorf("unexpected report: %+v", res.Resolution)
	}
	// Two outcome notices; completion means no payment is due.
	if res.Resolution.NotificationsCreated != 2 {
		t.Errorf("expected 2 notifications, got %d", res.Resolution.NotificationsCreated)
	}

	if b := getBet(t, env, yes.ID); b.Resolution == nil || b.Resolution.Outcome != model.OutcomeWon {
		t.Errorf("bob's bet: expected WON, got %+v", b.Resolution)
	}
	if b := getBet(t, env, no.ID); b.Resolution == nil || b.Resolution.Outcome != model.OutcomeLost {
		t.Errorf("carol's bet: expected LOST, got %+v", b.Resolution)
	}

	bobNotes := notificationsFor(t, env, "bob")
	if len(bobNotes) != 1 || bobNotes[0].Type != model.NotifyBetWon {
		t.Fatalf("bob: expected one BET_WON, got %+v", bobNotes)
	}
	want := "You won 100 Baht! Alice completed their Running workout, just as you predicted."
	if bobNotes[0].Message != want {
		t.Errorf("message:\n got %q\nwant %q", bobNotes[0].Message, want)
	}
	if countType(notificationsFor(t, env, "carol"), model.NotifyBetLost) != 1 {
		t.Error("carol: expected one BET_LOST")
	}
	if countType(notificationsFor(t, env, "alice"), model.NotifyPaymentDue) != 0 {
		t.Error("completed exercise must not produce PAYMENT_DUE")
	}
}

func TestSetCompleted_SameValueIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	seedEntry(t, env, "s1", "alice", now.Add(6*time.Hour))
	bet := placeBet(t, env, "bob", "alice", "s1", true, 100)

	res, err := env.eng.SetCompleted(context.Background(), "alice", "s1", false, nil)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if res.Changed {
		t.Error("writing the current value should not count as a change")
	}
	if res.Resolution.BetsResolved != 0 {
		t.Errorf("expected no resolution, got %+v", res.Resolution)
	}
	if !getBet(t, env, bet.ID).Active() {
		t.Error("bet should still be ACTIVE")
	}
}

func TestSetCompleted_ResolutionIsFinal(t *testing.T) {
	env := newTestEnv(t)
	seedEntry(t, env, "s1", "alice", now.Add(6*time.Hour))
	bet := placeBet(t, env, "bob", "alice", "s1", true, 100)

	if _, err := env.eng.SetCompleted(context.Background(), "alice", "s1", true, nil); err != nil {
		t.Fatal(err)
	}
	first := getBet(t, env, bet.ID).Resolution

	env.clock.Advance(time.Hour)
	res, err := env.eng.SetCompleted(context.Background(), "alice", "s1", false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Changed || res.Resolution.BetsResolved != 0 {
		t.Errorf("un-completing should change the flag but resolve nothing: %+v", res)
	}
	if res.Schedule.CompletedAt != nil {
		t.Error("completedAt should be cleared")
	}

	after := getBet(t, env, bet.ID).Resolution
	if after.Outcome != first.Outcome || !after.ResolvedAt.Equal(first.ResolvedAt) {
		t.Errorf("resolution changed: before %+v, after %+v", first, after)
	}
	if n := len(notificationsFor(t, env, "bob")); n != 1 {
		t.Errorf("expected 1 notification for bob, got %d", n)
	}
}

func TestSetCompleted_ExplicitCompletedAt(t *testing.T) {
	env := newTestEnv(t)
	seedEntry(t, env, "s1", "alice", now.Add(6*time.Hour))

	at := now.Add(-30 * time.Minute)
	res, err := env.eng.SetCompleted(context.Background(), "alice", "s1", true, &at)
	if err != nil {
		t.Fatal(err)
	}
	if res.Schedule.CompletedAt == nil || !res.Schedule.CompletedAt.Equal(at) {
		t.Errorf("expected completedAt %v, got %v", at, res.Schedule.CompletedAt)
	}
}

func TestSetCompleted_Rejections(t *testing.T) {
	env := newTestEnv(t)
	seedEntry(t, env, "today", "alice", time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC))
	seedEntry(t, env, "yesterday", "alice", time.Date(2026, 3, 9, 18, 0, 0, 0, time.UTC))

	_, err := env.eng.SetCompleted(context.Background(), "alice", "missing", true, nil)
	expectCode(t, err, betting.CodeNotFound)

	_, err = env.eng.SetCompleted(context.Background(), "bob", "today", true, nil)
	expectCode(t, err, betting.CodeForbidden)

	_, err = env.eng.SetCompleted(context.Background(), "alice", "yesterday", true, nil)
	expectCode(t, err, betting.CodeToggleWindowClosed)

	// Earlier today is still inside the window.
	if _, err := env.eng.SetCompleted(context.Background(), "alice", "today", true, nil); err != nil {
		t.Fatalf("same-day toggle: %v", err)
	}
}

func TestSetCompleted_WindowFollowsLocation(t *testing.T) {
	bangkok := time.FixedZone("ICT", 7*60*60)
	env := newTestEnv(t)
	env.eng = betting.NewEngine(env.st, env.sink, lock.NewLocalLocker(), env.clock, betting.Options{Location: bangkok})

	// 20:00 UTC on the 9th is 03:00 on the 10th in Bangkok, the same day as now.
	seedEntry(t, env, "s1", "alice", time.Date(2026, 3, 9, 20, 0, 0, 0, time.UTC))

	if _, err := env.eng.SetCompleted(context.Background(), "alice", "s1", false, nil); err != nil {
		t.Fatalf("expected toggle allowed in Bangkok calendar, got %v", err)
	}
}

// --- Trigger B: deadline sweep ---

func TestSweep_MissedExercise(t *testing.T) {
	env := newTestEnv(t)
	entry := seedEntry(t, env, "s1", "alice", now.Add(time.Hour))
	bet := placeBet(t, env, "bob", "alice", "s1", true, 100)

	env.clock.Set(entry.Date.Add(3 * time.Hour))
	report, err := env.eng.Sweep(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if report.SchedulesScanned != 1 || report.SchedulesProcessed != 1 || report.BetsResolved != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
	if report.NotificationsCreated != 2 || len(report.Failures) != 0 {
		t.Errorf("expected 2 notifications and no failures, got %+v", report)
	}
	if report.Truncated {
		t.Error("unbounded sweep should not truncate")
	}

	stored := getBet(t, env, bet.ID)
	if stored.Resolution == nil || stored.Resolution.Outcome != model.OutcomeLost {
		t.Fatalf("expected LOST, got %+v", stored.Resolution)
	}
	if !stored.Resolution.ResolvedAt.Equal(env.clock.Now()) {
		t.Errorf("resolvedAt: expected %v, got %v", env.clock.Now(), stored.Resolution.ResolvedAt)
	}

	bobNotes := notificationsFor(t, env, "bob")
	if len(bobNotes) != 1 || bobNotes[0].Type != model.NotifyBetLost {
		t.Fatalf("bob: expected one BET_LOST, got %+v", bobNotes)
	}

	var due *model.Notification
	for _, n := range notificationsFor(t, env, "alice") {
		if n.Type == model.NotifyPaymentDue {
			n := n
			due = &n
		}
	}
	if due == nil {
		t.Fatal("alice: expected PAYMENT_DUE")
	}
	if want := "You missed your Running workout. Please pay 100 Baht to Bob."; due.Message != want {
		t.Errorf("message:\n got %q\nwant %q", due.Message, want)
	}
	if due.Data["amount"] != "100" || due.Data["payeeEmail"] != "bob@example.com" {
		t.Errorf("unexpected data: %v", due.Data)
	}

	entryAfter, err := env.st.GetSchedule(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if entryAfter.Completed {
		t.Error("sweep must not mark the entry completed")
	}
}

func TestSweep_PaymentDueEvenWhenPlacerWins(t *testing.T) {
	env := newTestEnv(t)
	entry := seedEntry(t, env, "s1", "alice", now.Add(time.Hour))
	placeBet(t, env, "bob", "alice", "s1", false, 200)

	env.clock.Set(entry.Date.Add(3 * time.Hour))
	if _, err := env.eng.Sweep(context.Background(), time.Time{}); err != nil {
		t.Fatal(err)
	}

	if countType(notificationsFor(t, env, "bob"), model.NotifyBetWon) != 1 {
		t.Error("bob: expected BET_WON")
	}
	if countType(notificationsFor(t, env, "alice"), model.NotifyPaymentDue) != 1 {
		t.Error("alice: expected PAYMENT_DUE")
	}
}

func TestSweep_IsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	entry := seedEntry(t, env, "s1", "alice", now.Add(time.Hour))
	placeBet(t, env, "bob", "alice", "s1", true, 100)
	env.clock.Set(entry.Date.Add(3 * time.Hour))

	first, err := env.eng.Sweep(context.Background(), time.Time{})
	if err != nil || first.BetsResolved != 1 {
		t.Fatalf("first sweep: %+v, %v", first, err)
	}

	second, err := env.eng.Sweep(context.Background(), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if second.BetsResolved != 0 || second.NotificationsCreated != 0 || second.SchedulesScanned != 0 {
		t.Errorf("second sweep should find nothing: %+v", second)
	}
	if n := len(notificationsFor(t, env, "bob")); n != 1 {
		t.Errorf("expected 1 notification for bob, got %d", n)
	}
}

func TestSweep_GraceWindow(t *testing.T) {
	tests := []struct {
		name     string
		overdue  time.Duration
		resolved bool
	}{
		{"just past", time.Minute, false},
		{"1h59m", time.Hour + 59*time.Minute, false},
		{"exactly 2h", 2 * time.Hour, true},
		{"2h01m", 2*time.Hour + time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			entry := seedEntry(t, env, "s1", "alice", now.Add(time.Hour))
			bet := placeBet(t, env, "bob", "alice", "s1", true, 100)

			env.clock.Set(entry.Date.Add(tt.overdue))
			report, err := env.eng.Sweep(context.Background(), time.Time{})
			if err != nil {
				t.Fatal(err)
			}

			active := getBet(t, env, bet.ID).Active()
			if tt.resolved {
				if active || report.BetsResolved != 1 {
					t.Errorf("expected resolution, report %+v", report)
				}
				return
			}
			if !active || report.SkippedInGrace != 1 {
				t.Errorf("expected skip in grace, report %+v", report)
			}
		})
	}
}

func TestSweep_IgnoresCompletedAndFutureEntries(t *testing.T) {
	env := newTestEnv(t)
	seedEntry(t, env, "done", "alice", now.Add(time.Hour))
	seedEntry(t, env, "later", "carol", now.Add(72*time.Hour))
	placeBet(t, env, "bob", "alice", "done", true, 100)
	placeBet(t, env, "bob", "carol", "later", true, 100)
	if _, err := env.st.SetScheduleCompleted(context.Background(), "done", true, &now); err != nil {
		t.Fatal(err)
	}

	env.clock.Advance(10 * time.Hour)
	report, err := env.eng.Sweep(context.Background(), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if report.SchedulesScanned != 0 || report.BetsResolved != 0 {
		t.Errorf("nothing should be swept: %+v", report)
	}
}

func TestSweep_CutoffTruncates(t *testing.T) {
	env := newTestEnv(t)
	entry := seedEntry(t, env, "s1", "alice", now.Add(time.Hour))
	bet := placeBet(t, env, "bob", "alice", "s1", true, 100)
	env.clock.Set(entry.Date.Add(5 * time.Hour))

	report, err := env.eng.Sweep(context.Background(), env.clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !report.Truncated || report.SchedulesProcessed != 0 {
		t.Errorf("expected truncated sweep with no work, got %+v", report)
	}
	if !getBet(t, env, bet.ID).Active() {
		t.Error("bet should be left for the next sweep")
	}
}

func TestSweep_CancelledContext(t *testing.T) {
	env := newTestEnv(t)
	entry := seedEntry(t, env, "s1", "alice", now.Add(time.Hour))
	placeBet(t, env, "bob", "alice", "s1", true, 100)
	env.clock.Set(entry.Date.Add(5 * time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := env.eng.Sweep(ctx, time.Time{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !report.Truncated {
		t.Error("expected Truncated")
	}
}

func TestSweep_NotificationFailureDoesNotBlockSiblings(t *testing.T) {
	env := newTestEnv(t)
	entry := seedEntry(t, env, "s1", "alice", now.Add(time.Hour))
	b1 := placeBet(t, env, "bob", "alice", "s1", true, 100)
	b2 := placeBet(t, env, "carol", "alice", "s1", true, 200)

	env.sink.fail = func(n *model.Notification) bool {
		return n.UserID == "bob" && n.Type == model.NotifyBetLost
	}
	env.clock.Set(entry.Date.Add(3 * time.Hour))

	report, err := env.eng.Sweep(context.Background(), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if report.BetsResolved != 2 {
		t.Errorf("expected both bets resolved, got %+v", report)
	}
	if len(report.Failures) != 1 || report.Failures[0].BetID != b1.ID {
		t.Errorf("expected one failure for bob's bet, got %+v", report.Failures)
	}
	// carol's BET_LOST and both PAYMENT_DUE notices.
	if report.NotificationsCreated != 3 {
		t.Errorf("expected 3 notifications, got %d", report.NotificationsCreated)
	}
	for _, id := range []string{b1.ID, b2.ID} {
		if getBet(t, env, id).Active() {
			t.Errorf("bet %s should be resolved", id)
		}
	}
	if countType(notificationsFor(t, env, "alice"), model.NotifyPaymentDue) != 2 {
		t.Error("alice: expected 2 PAYMENT_DUE")
	}
}

func TestResolveSchedule_SweepSkipsCompletedEntry(t *testing.T) {
	env := newTestEnv(t)
	entry := seedEntry(t, env, "s1", "alice", now.Add(time.Hour))
	bet := placeBet(t, env, "bob", "alice", "s1", true, 100)

	// Completed after a sweep would have listed it.
	if _, err := env.st.SetScheduleCompleted(context.Background(), entry.ID, true, &now); err != nil {
		t.Fatal(err)
	}

	report, err := env.eng.ResolveSchedule(context.Background(), entry.ID, false, betting.TriggerSweep)
	if err != nil {
		t.Fatal(err)
	}
	if report.BetsResolved != 0 || report.SchedulesProcessed != 0 {
		t.Errorf("expected empty report, got %+v", report)
	}
	if !getBet(t, env, bet.ID).Active() {
		t.Error("sweep must not resolve a completed entry")
	}
}

func TestResolveSchedule_ToggleRacesSweep(t *testing.T) {
	env := newTestEnv(t)
	// 07:00 today: overdue past grace at noon, yet still inside the toggle window.
	env.clock.Set(time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC))
	seedEntry(t, env, "s1", "alice", time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC))
	placeBet(t, env, "bob", "alice", "s1", true, 100)
	placeBet(t, env, "carol", "alice", "s1", false, 100)
	env.clock.Set(now)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := env.eng.SetCompleted(context.Background(), "alice", "s1", true, nil); err != nil {
			t.Errorf("toggle: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := env.eng.Sweep(context.Background(), time.Time{}); err != nil {
			t.Errorf("sweep: %v", err)
		}
	}()
	wg.Wait()

	for _, placer := range []string{"bob", "carol"} {
		notes := notificationsFor(t, env, placer)
		outcomes := countType(notes, model.NotifyBetWon) + countType(notes, model.NotifyBetLost)
		if outcomes != 1 {
			t.Errorf("%s: expected exactly one outcome notification, got %d", placer, outcomes)
		}
	}
	bets, err := env.st.ListBetsBySchedule(context.Background(), "s1", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(bets) != 0 {
		t.Errorf("expected no ACTIVE bets, got %d", len(bets))
	}
}
