package signal_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nkov/broadcast/internal/adapters/signal"
	"github.com/nkov/broadcast/internal/app"
	"github.com/nkov/broadcast/internal/core"
	"github.com/nkov/broadcast/internal/core/coretest"
)

func newTestServer(t *testing.T) (*app.Orchestrator, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	orch := &app.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    core.NewRegistry(context.Background()),
		Gateway:  coretest.NewFakeGateway(),
	}
	ctrl := signal.NewController(orch)

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		ctrl.HandleSignal(context.Background(), c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return orch, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

type wsMsg struct {
	ID      int64           `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error"`
}

func readMsg(t *testing.T, ws *websocket.Conn) wsMsg {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m wsMsg
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("bad frame %q: %v", data, err)
	}
	return m
}

func sendReq(t *testing.T, ws *websocket.Conn, id int64, typ string, payload any) {
	t.Helper()
	if err := ws.WriteJSON(map[string]any{"id": id, "type": typ, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func TestSignalWelcomeAndRequestCorrelation(t *testing.T) {
	_, url := newTestServer(t)
	ws := dial(t, url)

	welcome := readMsg(t, ws)
	if welcome.Type != "message" {
		t.Fatalf("first frame type = %s, want message", welcome.Type)
	}
	var body struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}
	if err := json.Unmarshal(welcome.Payload, &body); err != nil {
		t.Fatalf("decode welcome: %v", err)
	}
	if body.Type != "welcome" || body.ID == "" {
		t.Fatalf("welcome payload = %+v", body)
	}

	sendReq(t, ws, 1, "createRoom", map[string]string{"room": "studio"})
	resp := readMsg(t, ws)
	if resp.ID != 1 || resp.Type != "response" {
		t.Fatalf("createRoom resp = %+v", resp)
	}

	// A produce with a kind the server does not know is rejected before any
	// room or role check.
	sendReq(t, ws, 2, "produce", map[string]string{"kind": "screen"})
	resp = readMsg(t, ws)
	if resp.ID != 2 || resp.Type != "error" || resp.Error == "" {
		t.Fatalf("bad-kind resp = %+v", resp)
	}

	sendReq(t, ws, 3, "flipTable", nil)
	resp = readMsg(t, ws)
	if resp.ID != 3 || resp.Type != "error" {
		t.Fatalf("unknown-type resp = %+v", resp)
	}
}

func TestSignalRejectsRoomlessSession(t *testing.T) {
	_, url := newTestServer(t)
	ws := dial(t, url)
	readMsg(t, ws) // welcome

	sendReq(t, ws, 7, "getRouterRtpCapabilities", nil)
	resp := readMsg(t, ws)
	if resp.ID != 7 || resp.Type != "error" {
		t.Fatalf("capabilities resp = %+v", resp)
	}
}

func TestSignalDisconnectDestroysOwnedRoom(t *testing.T) {
	orch, url := newTestServer(t)
	ws := dial(t, url)
	readMsg(t, ws) // welcome

	sendReq(t, ws, 1, "createRoom", map[string]string{"room": "studio"})
	if resp := readMsg(t, ws); resp.Type != "response" {
		t.Fatalf("createRoom resp = %+v", resp)
	}
	if orch.Rooms.Len() != 1 {
		t.Fatalf("rooms = %d, want 1", orch.Rooms.Len())
	}

	_ = ws.Close()

	// Cleanup runs on the server's read loop; give it a moment.
	deadline := time.Now().Add(2 * time.Second)
	for orch.Rooms.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("room not destroyed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
