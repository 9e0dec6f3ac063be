package httpapi

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

func TestWebSocketSubscribeStreamsEvents(t *testing.T) {
	server, service := newTestServer(t)
	httpServer := httptest.NewServer(server)
	defer httpServer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, httpServer.URL+"/config/ws", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	readEvent := func() map[string]any {
		t.Helper()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		var event map[string]any
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatalf("event is not JSON: %v", err)
		}
		return event
	}

	if event := readEvent(); event["type"] != "connected" {
		t.Fatalf("expected connected event, got %+v", event)
	}

	service.NotifyUpdated("save-3")
	event := readEvent()
	if event["type"] != "config-updated" || event["saveId"] != "save-3" {
		t.Fatalf("unexpected event %+v", event)
	}
}
