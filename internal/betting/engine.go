// Package betting holds the bet lifecycle: placement validation, resolution
// of a schedule entry's ACTIVE bets from either trigger (completion toggle or
// deadline sweep), and the schedule operations that guard it.
//
// Stake amounts use shopspring/decimal, never float64.
package betting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/fitbet/bet-engine/internal/clock"
	"github.com/fitbet/bet-engine/internal/lock"
	"github.com/fitbet/bet-engine/internal/metrics"
	"github.com/fitbet/bet-engine/internal/model"
	"github.com/fitbet/bet-engine/internal/notify"
	"github.com/fitbet/bet-engine/internal/store"
)

// DefaultGracePeriod absorbs client/server clock and timezone skew before the
// sweep treats an uncompleted entry as missed.
const DefaultGracePeriod = 2 * time.Hour

var (
	MinStake = decimal.NewFromInt(50)
	MaxStake = decimal.NewFromInt(1000)
)

// Options tunes an Engine. Zero values select the defaults.
type Options struct {
	GracePeriod time.Duration
	Location    *time.Location // calendar for the toggle window; UTC if nil
	Currency    string         // unit named in notification text
}

// Engine runs every bet and schedule operation. It is safe for concurrent use.
type Engine struct {
	store    store.Store
	sink     notify.Sink
	locker   lock.Locker
	clock    clock.Clock
	validate *validator.Validate
	grace    time.Duration
	loc      *time.Location
	currency string
	log      *slog.Logger
}

// NewEngine wires an engine to its collaborators.
func NewEngine(st store.Store, sink notify.Sink, locker lock.Locker, clk clock.Clock, opts Options) *Engine {
	e := &Engine{
		store:    st,
		sink:     sink,
		locker:   locker,
		clock:    clk,
		validate: validator.New(),
		grace:    opts.GracePeriod,
		loc:      opts.Location,
		currency: opts.Currency,
		log:      slog.Default().With("component", "betting"),
	}
	if e.grace <= 0 {
		e.grace = DefaultGracePeriod
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.currency == "" {
		e.currency = "Baht"
	}
	return e
}

// GracePeriod reports the configured sweep grace window.
func (e *Engine) GracePeriod() time.Duration { return e.grace }

// rejected records the rejection metric and passes err through.
func (e *Engine) rejected(err error) error {
	if code, ok := CodeOf(err); ok {
		metrics.BetRejections.WithLabelValues(string(code)).Inc()
	}
	return err
}

// loadSchedule maps store.ErrNotFound onto the NOT_FOUND rejection.
func (e *Engine) loadSchedule(ctx context.Context, id string) (*model.ScheduleEntry, error) {
	entry, err := e.store.GetSchedule(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load schedule %s: %w", id, err)
	}
	return entry, nil
}

// userCache memoizes directory lookups for one request or batch.
type userCache struct {
	st    store.Store
	users map[string]*model.User
}

func newUserCache(st store.Store) *userCache {
	return &userCache{st: st, users: make(map[string]*model.User)}
}

// get returns the user, or a placeholder carrying only the id when the
// directory lookup fails.
func (c *userCache) get(ctx context.Context, id string) *model.User {
	if u, ok := c.users[id]; ok {
		return u
	}
	u, err := c.st.GetUser(ctx, id)
	if err != nil {
		slog.Warn("user lookup failed", "user_id", id, "err", err)
		u = &model.User{ID: id, Name: id}
	}
	c.users[id] = u
	return u
}

func (c *userCache) ref(ctx context.Context, id string) *model.UserRef {
	u := c.get(ctx, id)
	return &model.UserRef{ID: u.ID, Name: u.Name, Email: u.Email}
}

func scheduleRef(e *model.ScheduleEntry) *model.ScheduleRef {
	if e == nil {
		return nil
	}
	return &model.ScheduleRef{
		ID:           e.ID,
		ExerciseType: e.ExerciseType,
		Date:         e.Date,
		TimeSlot:     e.TimeSlot,
		Completed:    e.Completed,
	}
}
