package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fitbet/bet-engine/internal/clock"
	"github.com/fitbet/bet-engine/internal/model"
	"github.com/fitbet/bet-engine/internal/notify"
	"github.com/fitbet/bet-engine/internal/store"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type failingRecorder struct{}

func (failingRecorder) InsertNotification(context.Context, *model.Notification) error {
	return errors.New("disk full")
}

type recordingPublisher struct {
	mu   sync.Mutex
	got  []model.Notification
	fail bool
}

func (p *recordingPublisher) Publish(_ context.Context, n model.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.got = append(p.got, n)
	return nil
}

type recordingPusher struct {
	users []string
}

func (p *recordingPusher) Push(userID string, _ model.Notification) {
	p.users = append(p.users, userID)
}

func TestDispatcher_Emit_PersistsAndFansOut(t *testing.T) {
	st := store.NewMemoryStore()
	pub := &recordingPublisher{}
	push := &recordingPusher{}
	d := notify.NewDispatcher(st, clock.NewManual(now), pub, push)

	n := &model.Notification{UserID: "bob", Type: model.NotifyNewBetPlaced, Title: "New Bet Placed!"}
	if err := d.Emit(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n.ID == "" {
		t.Error("expected generated ID")
	}
	if !n.CreatedAt.Equal(now) {
		t.Errorf("expected CreatedAt from clock, got %s", n.CreatedAt)
	}

	stored, _ := st.ListNotifications(context.Background(), "bob", false, 0)
	if len(stored) != 1 || stored[0].ID != n.ID || stored[0].Read {
		t.Fatalf("expected one unread stored notification, got %+v", stored)
	}
	if len(pub.got) != 1 || pub.got[0].ID != n.ID {
		t.Errorf("expected notification published, got %+v", pub.got)
	}
	if len(push.users) != 1 || push.users[0] != "bob" {
		t.Errorf("expected push to bob, got %v", push.users)
	}
}

func TestDispatcher_Emit_PersistFailureIsReturned(t *testing.T) {
	pub := &recordingPublisher{}
	d := notify.NewDispatcher(failingRecorder{}, clock.NewManual(now), pub, nil)

	err := d.Emit(context.Background(), &model.Notification{UserID: "bob", Type: model.NotifyBetLost})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(pub.got) != 0 {
		t.Error("unpersisted notification must not be published")
	}
}

func TestDispatcher_Emit_PublishFailureIsBestEffort(t *testing.T) {
	st := store.NewMemoryStore()
	d := notify.NewDispatcher(st, clock.NewManual(now), &recordingPublisher{fail: true}, nil)

	if err := d.Emit(context.Background(), &model.Notification{UserID: "bob", Type: model.NotifyPaymentDue}); err != nil {
		t.Fatalf("publish failure must not fail emit: %v", err)
	}
	if n, _ := st.CountUnreadNotifications(context.Background(), "bob", model.NotifyPaymentDue); n != 1 {
		t.Errorf("expected notification persisted, got %d", n)
	}
}
