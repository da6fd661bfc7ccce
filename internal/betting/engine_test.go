package betting_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fitbet/bet-engine/internal/betting"
	"github.com/fitbet/bet-engine/internal/clock"
	"github.com/fitbet/bet-engine/internal/lock"
	"github.com/fitbet/bet-engine/internal/model"
	"github.com/fitbet/bet-engine/internal/notify"
	"github.com/fitbet/bet-engine/internal/store"
)

// now is Tuesday noon; "tomorrow" entries are open for betting.
var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func amount(f float64) *decimal.Decimal {
	v := d(f)
	return &v
}

func boolPtr(b bool) *bool { return &b }

// flakySink persists through a real dispatcher but fails the notifications
// that match fail.
type flakySink struct {
	next notify.Sink
	fail func(n *model.Notification) bool

	mu     sync.Mutex
	failed []model.Notification
}

func (s *flakySink) Emit(ctx context.Context, n *model.Notification) error {
	if s.fail != nil && s.fail(n) {
		s.mu.Lock()
		s.failed = append(s.failed, *n)
		s.mu.Unlock()
		return errors.New("notification store unavailable")
	}
	return s.next.Emit(ctx, n)
}

type testEnv struct {
	eng   *betting.Engine
	st    *store.MemoryStore
	clock *clock.Manual
	sink  *flakySink
}

// newTestEnv creates an Engine over an in-memory store with a manual clock
// frozen at now and the users alice, bob, carol and dave.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	clk := clock.NewManual(now)
	sink := &flakySink{next: notify.NewDispatcher(st, clk, nil, nil)}
	eng := betting.NewEngine(st, sink, lock.NewLocalLocker(), clk, betting.Options{})

	for _, u := range []model.User{
		{ID: "alice", Name: "Alice", Email: "alice@example.com"},
		{ID: "bob", Name: "Bob", Email: "bob@example.com"},
		{ID: "carol", Name: "Carol", Email: "carol@example.com"},
		{ID: "dave", Name: "Dave", Email: "dave@example.com"},
	} {
		u := u
		if err := st.UpsertUser(context.Background(), &u); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
	return &testEnv{eng: eng, st: st, clock: clk, sink: sink}
}

// seedEntry stores a Running entry directly, bypassing validation.
func seedEntry(t *testing.T, env *testEnv, id, owner string, date time.Time) *model.ScheduleEntry {
	t.Helper()
	e := &model.ScheduleEntry{
		ID: id, UserID: owner, Date: date, ExerciseType: "Running",
		TimeSlot: model.SlotMorning, CreatedAt: now,
	}
	if err := env.st.CreateSchedule(context.Background(), e); err != nil {
		t.Fatalf("seed schedule %s: %v", id, err)
	}
	return e
}

func placeBet(t *testing.T, env *testEnv, placer, target, scheduleID string, prediction bool, stake float64) *model.BetView {
	t.Helper()
	view, err := env.eng.PlaceBet(context.Background(), placer, betting.PlaceBetRequest{
		TargetUserID: target,
		ScheduleID:   scheduleID,
		Prediction:   boolPtr(prediction),
		Amount:       amount(stake),
	})
	if err != nil {
		t.Fatalf("place bet %s -> %s: %v", placer, scheduleID, err)
	}
	return view
}

func getBet(t *testing.T, env *testEnv, id string) *model.Bet {
	t.Helper()
	b, err := env.st.GetBet(context.Background(), id)
	if err != nil {
		t.Fatalf("get bet %s: %v", id, err)
	}
	return b
}

func notificationsFor(t *testing.T, env *testEnv, userID string) []model.Notification {
	t.Helper()
	list, err := env.st.ListNotifications(context.Background(), userID, false, 0)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	return list
}

func countType(list []model.Notification, typ model.NotificationType) int {
	n := 0
	for _, item := range list {
		if item.Type == typ {
			n++
		}
	}
	return n
}

func expectCode(t *testing.T, err error, want betting.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", want)
	}
	code, ok := betting.CodeOf(err)
	if !ok {
		t.Fatalf("expected rejection %s, got %v", want, err)
	}
	if code != want {
		t.Fatalf("expected %s, got %s (%v)", want, code, err)
	}
}

func TestNewEngine_Defaults(t *testing.T) {
	eng := betting.NewEngine(store.NewMemoryStore(), nil, lock.NewLocalLocker(), clock.NewManual(now), betting.Options{})
	if eng.GracePeriod() != betting.DefaultGracePeriod {
		t.Errorf("grace: expected %v, got %v", betting.DefaultGracePeriod, eng.GracePeriod())
	}

	eng = betting.NewEngine(store.NewMemoryStore(), nil, lock.NewLocalLocker(), clock.NewManual(now),
		betting.Options{GracePeriod: 30 * time.Minute})
	if eng.GracePeriod() != 30*time.Minute {
		t.Errorf("grace: expected 30m, got %v", eng.GracePeriod())
	}
}

func TestRejectionError_IsMatchesByCode(t *testing.T) {
	_, err := newTestEnv(t).eng.MarkNotifications(context.Background(), "alice", nil, true)
	if !errors.Is(err, betting.ErrInvalidInput) {
		t.Fatalf("expected errors.Is INVALID_INPUT, got %v", err)
	}
	if errors.Is(err, betting.ErrInvalidStake) {
		t.Error("INVALID_INPUT must not match INVALID_STAKE")
	}
	if _, ok := betting.CodeOf(errors.New("plain")); ok {
		t.Error("plain error has no code")
	}
}
