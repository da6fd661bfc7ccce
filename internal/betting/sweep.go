package betting

import (
	"context"
	"fmt"
	"time"

	"github.com/fitbet/bet-engine/internal/metrics"
)

// SweepReport summarizes one deadline sweep.
type SweepReport struct {
	Report
	SchedulesScanned int       `json:"schedulesScanned"`
	SkippedInGrace   int       `json:"skippedInGrace"`
	Truncated        bool      `json:"truncated"`
	StartedAt        time.Time `json:"startedAt"`
}

// Sweep resolves overdue entries nobody marked: uncompleted, dated before
// now, with at least one ACTIVE bet, and past the grace window. They resolve
// with completed = false. now is captured once for the whole pass.
//
// A non-zero cutoff bounds the wall-clock time spent; once it passes, the
// remaining entries are left for the next sweep and Truncated is set.
// Re-running is safe: only ACTIVE bets are touched, via compare-and-swap.
func (e *Engine) Sweep(ctx context.Context, cutoff time.Time) (SweepReport, error) {
	started := time.Now()
	now := e.clock.Now()
	report := SweepReport{StartedAt: now}

	entries, err := e.store.ListOverdueSchedules(ctx, now)
	if err != nil {
		return report, fmt.Errorf("list overdue schedules: %w", err)
	}
	report.SchedulesScanned = len(entries)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			report.Truncated = true
			return report, err
		}
		if !cutoff.IsZero() && !e.clock.Now().Before(cutoff) {
			report.Truncated = true
			break
		}

		if now.Sub(entry.Date) < e.grace {
			report.SkippedInGrace++
			continue
		}

		r, err := e.ResolveSchedule(ctx, entry.ID, false, TriggerSweep)
		report.merge(r)
		if err != nil {
			e.log.Error("sweep schedule failed", "schedule_id", entry.ID, "err", err)
			report.fail(entry.ID, "", "schedule", err)
		}
	}

	metrics.SweepDuration.Observe(time.Since(started).Seconds())
	metrics.SweepLastRun.SetToCurrentTime()

	e.log.Info("sweep finished",
		"scanned", report.SchedulesScanned,
		"processed", report.SchedulesProcessed,
		"skipped_in_grace", report.SkippedInGrace,
		"bets_resolved", report.BetsResolved,
		"notifications", report.NotificationsCreated,
		"failures", len(report.Failures),
		"truncated", report.Truncated,
	)
	return report, nil
}
