// Package stats derives the read-only figures shown on profiles, the friends
// list and the dashboard. The Compute functions are pure; Service loads their
// inputs from the store.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/fitbet/bet-engine/internal/model"
)

const (
	upcomingWindow = 7 * 24 * time.Hour
	upcomingLimit  = 5
)

// UserStats summarizes one user's schedule and the bets riding on it.
type UserStats struct {
	TotalSchedules     int `json:"totalSchedules"`
	CompletedSchedules int `json:"completedSchedules"`
	CompletionRate     int `json:"completionRate"`
	ActiveBets         int `json:"activeBets"`
	StreakDays         int `json:"streakDays"`
	ThisWeekWorkouts   int `json:"thisWeekWorkouts"`
	UpcomingWorkouts   int `json:"upcomingWorkouts"`
}

// UpcomingExercise is a dashboard row.
type UpcomingExercise struct {
	ID           string         `json:"id"`
	Date         time.Time      `json:"date"`
	ExerciseType string         `json:"exerciseType"`
	TimeSlot     model.TimeSlot `json:"timeSlot"`
}

// Dashboard is the signed-in user's overview for the current month.
type Dashboard struct {
	TotalSchedules     int                `json:"totalSchedules"`
	CompletedSchedules int                `json:"completedSchedules"`
	ActiveBets         int                `json:"activeBets"`
	PendingPayments    int                `json:"pendingPayments"`
	UpcomingExercises  []UpcomingExercise `json:"upcomingExercises"`
}

// ComputeUserStats aggregates entries (all of the user's) and received (bets
// placed on the user). Calendar days are taken in loc.
func ComputeUserStats(entries []model.ScheduleEntry, received []model.Bet, now time.Time, loc *time.Location) UserStats {
	var s UserStats
	s.TotalSchedules = len(entries)

	weekStart := startOfWeek(now, loc)
	var completedDays []time.Time
	for _, e := range entries {
		if e.Completed {
			s.CompletedSchedules++
			completedDays = append(completedDays, startOfDay(e.Date, loc))
			if !e.Date.Before(weekStart) && !e.Date.After(now) {
				s.ThisWeekWorkouts++
			}
		} else if isUpcoming(e, now) {
			s.UpcomingWorkouts++
		}
	}
	s.CompletionRate = CompletionRate(s.CompletedSchedules, s.TotalSchedules)
	s.StreakDays = streak(completedDays, startOfDay(now, loc))

	for _, b := range received {
		if b.Active() {
			s.ActiveBets++
		}
	}
	return s
}

// ComputeDashboard builds the dashboard from the user's entries, the active
// bet count on both sides and the unread PAYMENT_DUE count.
func ComputeDashboard(entries []model.ScheduleEntry, activeBets, pendingPayments int, now time.Time, loc *time.Location) Dashboard {
	monthStart := startOfMonth(now, loc)
	monthEnd := monthStart.AddDate(0, 1, 0).Add(-time.Nanosecond)

	dash := Dashboard{
		ActiveBets:        activeBets,
		PendingPayments:   pendingPayments,
		UpcomingExercises: []UpcomingExercise{},
	}
	var upcoming []model.ScheduleEntry
	for _, e := range entries {
		if !e.Date.Before(monthStart) && !e.Date.After(monthEnd) {
			dash.TotalSchedules++
			if e.Completed {
				dash.CompletedSchedules++
			}
		}
		if !e.Completed && isUpcoming(e, now) {
			upcoming = append(upcoming, e)
		}
	}

	sort.Slice(upcoming, func(i, j int) bool { return upcoming[i].Date.Before(upcoming[j].Date) })
	if len(upcoming) > upcomingLimit {
		upcoming = upcoming[:upcomingLimit]
	}
	for _, e := range upcoming {
		dash.UpcomingExercises = append(dash.UpcomingExercises, UpcomingExercise{
			ID: e.ID, Date: e.Date, ExerciseType: e.ExerciseType, TimeSlot: e.TimeSlot,
		})
	}
	return dash
}

// CompletionRate is completed/total as a whole percentage, rounded half
// away from zero. Zero total gives zero.
func CompletionRate(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

// streak counts consecutive days ending today that hold a completed entry.
// Several entries on one day count once.
func streak(days []time.Time, today time.Time) int {
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	n := 0
	expect := today
	for _, day := range days {
		switch {
		case day.Equal(expect):
			n++
			expect = expect.AddDate(0, 0, -1)
		case day.Before(expect):
			return n
		}
	}
	return n
}

func isUpcoming(e model.ScheduleEntry, now time.Time) bool {
	return !e.Date.Before(now) && !e.Date.After(now.Add(upcomingWindow))
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// startOfWeek is the most recent Sunday midnight.
func startOfWeek(t time.Time, loc *time.Location) time.Time {
	day := startOfDay(t, loc)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

func startOfMonth(t time.Time, loc *time.Location) time.Time {
	y, m, _ := t.In(loc).Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, loc)
}
