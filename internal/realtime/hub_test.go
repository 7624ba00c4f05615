package realtime

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chowline/internal/model"
)

func TestHub_RoutesEventsToTenantRoom(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	go hub.Run()

	upgrader := websocket.Upgrader{}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("listener not permitted in this environment: %v", err)
	}

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		hub.Register <- Subscription{TenantID: r.URL.Query().Get("tenant"), Conn: conn}
	}))
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	dial := func(tenant string) *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?tenant="+tenant, nil)
		if err != nil {
			t.Fatalf("dial %s: %v", tenant, err)
		}
		t.Cleanup(func() { conn.Close() })
		return conn
	}
	connA := dial("tenant-a")
	connB := dial("tenant-b")

	ev := OrderEvent{
		TenantID: "tenant-a",
		OrderID:  "ord-1",
		Previous: model.OrderConfirmed,
		Status:   model.OrderPreparing,
		At:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	select {
	case hub.Events <- ev:
	case <-time.After(time.Second):
		t.Fatalf("timed out sending to hub")
	}

	readCh := make(chan OrderEvent, 1)
	go func() {
		_, data, err := connA.ReadMessage()
		if err != nil {
			t.Errorf("read message: %v", err)
			return
		}
		var got OrderEvent
		if err := json.Unmarshal(data, &got); err != nil {
			t.Errorf("decode event: %v", err)
			return
		}
		readCh <- got
	}()

	select {
	case got := <-readCh:
		if got.OrderID != "ord-1" || got.Status != model.OrderPreparing {
			t.Fatalf("unexpected event: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}

	// The other tenant's room stays quiet.
	connB.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := connB.ReadMessage(); err == nil {
		t.Fatal("expected no event for tenant-b")
	}
}
