// Package notify is the notification sink. A notification is first persisted
// (the record users read back), then published to the delivery stream and
// pushed to connected websocket clients. Only the persist step can fail the
// emit; the later fan-out is best effort.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/fitbet/bet-engine/internal/clock"
	"github.com/fitbet/bet-engine/internal/metrics"
	"github.com/fitbet/bet-engine/internal/model"
)

// Sink accepts notifications produced by the bet engine.
type Sink interface {
	Emit(ctx context.Context, n *model.Notification) error
}

// Recorder is the slice of the store the dispatcher writes through.
type Recorder interface {
	InsertNotification(ctx context.Context, n *model.Notification) error
}

// Publisher forwards a persisted notification to an external delivery system.
type Publisher interface {
	Publish(ctx context.Context, n model.Notification) error
}

// Pusher delivers a notification to a user's live connections.
type Pusher interface {
	Push(userID string, n model.Notification)
}

// Dispatcher is the production Sink.
type Dispatcher struct {
	rec       Recorder
	clock     clock.Clock
	publisher Publisher // optional
	pusher    Pusher    // optional
	log       *slog.Logger
}

// NewDispatcher creates a dispatcher. Pass nil for publisher or pusher when
// that channel is not configured.
func NewDispatcher(rec Recorder, clk clock.Clock, publisher Publisher, pusher Pusher) *Dispatcher {
	return &Dispatcher{
		rec:       rec,
		clock:     clk,
		publisher: publisher,
		pusher:    pusher,
		log:       slog.Default().With("component", "notify"),
	}
}

// Emit assigns an id and timestamp when missing, persists n, then fans it out.
func (d *Dispatcher) Emit(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.clock.Now()
	}

	if err := d.rec.InsertNotification(ctx, n); err != nil {
		metrics.Notifications.WithLabelValues(string(n.Type), "failed").Inc()
		return fmt.Errorf("persist notification %s for %s: %w", n.Type, n.UserID, err)
	}
	metrics.Notifications.WithLabelValues(string(n.Type), "persisted").Inc()

	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, *n); err != nil {
			metrics.Notifications.WithLabelValues(string(n.Type), "publish_failed").Inc()
			d.log.Warn("publish notification failed",
				"notification_id", n.ID,
				"type", n.Type,
				"err", err,
			)
		}
	}
	if d.pusher != nil {
		d.pusher.Push(n.UserID, *n)
	}
	return nil
}
