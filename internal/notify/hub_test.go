package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fitbet/bet-engine/internal/model"
	"github.com/fitbet/bet-engine/internal/notify"
)

func TestHub_PushReachesOnlyRecipient(t *testing.T) {
	hub := notify.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, r.URL.Query().Get("user"))
	}))
	defer srv.Close()

	dial := func(user string) *websocket.Conn {
		t.Helper()
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial %s: %v", user, err)
		}
		t.Cleanup(func() { conn.Close() })
		return conn
	}
	bob := dial("bob")
	alice := dial("alice")

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount("bob") != 1 || hub.ClientCount("alice") != 1 {
		if time.Now().After(deadline) {
			t.Fatal("clients did not register")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Push("bob", model.Notification{ID: "n1", UserID: "bob", Type: model.NotifyNewBetPlaced})

	bob.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := bob.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg notify.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != "notification" || msg.Notification == nil || msg.Notification.ID != "n1" {
		t.Fatalf("unexpected message %s", data)
	}

	alice.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := alice.ReadMessage(); err == nil {
		t.Fatal("alice must not receive bob's notification")
	}
}
