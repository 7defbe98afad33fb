package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"telehealth/config"
	"telehealth/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func TestBroadcastToUser(t *testing.T) {
	hub := NewHub()
	a1 := NewClient(1, "PATIENT")
	a2 := NewClient(1, "PATIENT")
	b := NewClient(2, "DOCTOR")
	hub.Register(a1)
	hub.Register(a2)
	hub.Register(b)
	if hub.ClientCount() != 3 {
		t.Fatalf("count = %d", hub.ClientCount())
	}

	hub.BroadcastToUser(1, map[string]string{"type": "session_ended"})
	for _, c := range []*Client{a1, a2} {
		select {
		case msg := <-c.Send:
			var got map[string]string
			if err := json.Unmarshal(msg, &got); err != nil || got["type"] != "session_ended" {
				t.Errorf("msg = %s, %v", msg, err)
			}
		default:
			t.Error("expected a message")
		}
	}
	select {
	case msg := <-b.Send:
		t.Errorf("user 2 got %s", msg)
	default:
	}

	a1.Close()
	a1.Close()
	if hub.ClientCount() != 2 {
		t.Errorf("count after close = %d", hub.ClientCount())
	}
	hub.BroadcastToUser(1, "still delivered")
	if len(a2.Send) != 1 {
		t.Errorf("a2 buffered = %d", len(a2.Send))
	}
}

func TestBroadcastDropsWhenBufferFull(t *testing.T) {
	hub := NewHub()
	c := NewClient(7, "PATIENT")
	hub.Register(c)
	for i := 0; i < cap(c.Send)+5; i++ {
		hub.BroadcastToUser(7, i)
	}
	if len(c.Send) != cap(c.Send) {
		t.Errorf("buffered = %d, want %d", len(c.Send), cap(c.Send))
	}
}

func TestServeSessionEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.JWTConfig{AccessSecret: "secret", AccessExpiry: time.Minute, Issuer: "telehealth"}
	hub := NewHub()
	r := gin.New()
	r.GET("/ws/sessions", ServeSessionEvents(cfg, hub))
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws/sessions")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token status = %d", resp.StatusCode)
	}

	token, err := auth.GenerateAccessToken(cfg, 9, "PATIENT")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	hub.BroadcastToUser(9, map[string]interface{}{"type": "session_started", "session_id": 3})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(msg), `"session_started"`) {
		t.Errorf("msg = %s", msg)
	}
}
