package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fitbet/bet-engine/internal/clock"
	"github.com/fitbet/bet-engine/internal/model"
	"github.com/fitbet/bet-engine/internal/store"
)

// ErrUserNotFound is returned for stats of an unknown user.
var ErrUserNotFound = errors.New("stats: user not found")

// friendsConcurrency bounds the per-user loads of Friends.
const friendsConcurrency = 8

// Reader is the slice of the store the aggregator needs.
type Reader interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	ListSchedulesByOwner(ctx context.Context, ownerID string, from, to time.Time) ([]model.ScheduleEntry, error)
	ListBetsByPlacer(ctx context.Context, placerID string) ([]model.Bet, error)
	ListBetsByTarget(ctx context.Context, targetID string) ([]model.Bet, error)
	CountUnreadNotifications(ctx context.Context, userID string, typ model.NotificationType) (int, error)
}

// Service loads the inputs of the Compute functions.
type Service struct {
	store Reader
	clock clock.Clock
	loc   *time.Location
}

// NewService creates a stats service. A nil loc means UTC.
func NewService(st Reader, clk clock.Clock, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: st, clock: clk, loc: loc}
}

// UserStats returns the profile figures for userID.
func (s *Service) UserStats(ctx context.Context, userID string) (*UserStats, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	st, err := s.userStats(ctx, userID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Service) userStats(ctx context.Context, userID string, now time.Time) (UserStats, error) {
	entries, err := s.store.ListSchedulesByOwner(ctx, userID, time.Time{}, time.Time{})
	if err != nil {
		return UserStats{}, fmt.Errorf("list schedules for %s: %w", userID, err)
	}
	received, err := s.store.ListBetsByTarget(ctx, userID)
	if err != nil {
		return UserStats{}, fmt.Errorf("list received bets for %s: %w", userID, err)
	}
	return ComputeUserStats(entries, received, now, s.loc), nil
}

// Friend is another user with their stats, as listed on the friends page.
type Friend struct {
	model.User
	Stats UserStats `json:"stats"`
}

// Friends returns every user except requesterID, each with stats, ordered
// by name.
func (s *Service) Friends(ctx context.Context, requesterID string) ([]Friend, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	now := s.clock.Now()
	friends := make([]Friend, 0, len(users))
	for _, u := range users {
		if u.ID != requesterID {
			friends = append(friends, Friend{User: u})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(friendsConcurrency)
	for i := range friends {
		f := &friends[i]
		g.Go(func() error {
			st, err := s.userStats(gctx, f.ID, now)
			if err != nil {
				return err
			}
			f.Stats = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return friends, nil
}

// Dashboard returns the signed-in user's overview.
func (s *Service) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	now := s.clock.Now()

	var (
		entries          []model.ScheduleEntry
		placed, received []model.Bet
		pendingPayments  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		entries, err = s.store.ListSchedulesByOwner(gctx, userID, time.Time{}, time.Time{})
		return err
	})
	g.Go(func() (err error) {
		placed, err = s.store.ListBetsByPlacer(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		received, err = s.store.ListBetsByTarget(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		pendingPayments, err = s.store.CountUnreadNotifications(gctx, userID, model.NotifyPaymentDue)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load dashboard for %s: %w", userID, err)
	}

	active := 0
	for _, bets := range [][]model.Bet{placed, received} {
		for _, b := range bets {
			if b.Active() {
				active++
			}
		}
	}
	dash := ComputeDashboard(entries, active, pendingPayments, now, s.loc)
	return &dash, nil
}
