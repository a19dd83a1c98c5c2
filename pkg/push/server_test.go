// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package push

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eklim/faultlink/pkg/device"
	"github.com/eklim/faultlink/pkg/logring"
	"github.com/eklim/faultlink/pkg/session"
)

// ============================================================
// Test Helpers
// ============================================================

type loggedIn struct{}

func (loggedIn) LoggedIn() bool                { return true }
func (loggedIn) SessionTimeout() time.Duration { return time.Hour }

type healthyLink struct{}

func (healthyLink) Healthy() bool        { return true }
func (healthyLink) SuccessRate() float64 { return 100 }

func newTestServer(t *testing.T, maxClients int, cfg Config) (*session.Hub, *httptest.Server) {
	t.Helper()

	scfg := session.DefaultConfig()
	scfg.MaxClients = maxClients
	hub := session.NewHub(scfg, session.Deps{
		Login:  loggedIn{},
		Device: device.New(device.Info{Name: "FR-TEST"}),
		Link:   healthyLink{},
		Logs:   logring.New(10, nil),
	})

	srv := httptest.NewServer(NewServer(hub, cfg))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readType(t *testing.T, ws *websocket.Conn) map[string]interface{} {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]interface{}
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	return msg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ============================================================
// Session Tests
// ============================================================

func TestServer_AuthAndStatus(t *testing.T) {
	_, srv := newTestServer(t, 5, DefaultConfig(1024))
	ws := dial(t, srv)

	if msg := readType(t, ws); msg["type"] != session.TypeAuthRequired {
		t.Fatalf("expected auth_required, got %v", msg["type"])
	}

	if err := ws.WriteJSON(map[string]string{"cmd": "auth", "token": "session_0123"}); err != nil {
		t.Fatal(err)
	}
	want := []string{session.TypeAuthSuccess, session.TypeStatus, session.TypeLogsComplete}
	for _, typ := range want {
		if msg := readType(t, ws); msg["type"] != typ {
			t.Fatalf("expected %s, got %v", typ, msg["type"])
		}
	}

	if err := ws.WriteJSON(map[string]string{"cmd": "get_status"}); err != nil {
		t.Fatal(err)
	}
	msg := readType(t, ws)
	if msg["type"] != session.TypeStatus || msg["deviceName"] != "FR-TEST" || msg["sessionActive"] != true {
		t.Errorf("unexpected status: %v", msg)
	}
}

func TestServer_BinaryFramesIgnored(t *testing.T) {
	_, srv := newTestServer(t, 5, DefaultConfig(1024))
	ws := dial(t, srv)
	readType(t, ws)

	if err := ws.WriteMessage(websocket.BinaryMessage, []byte{0xAA, 0x01, 0x00}); err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteJSON(map[string]string{"cmd": "ping"}); err != nil {
		t.Fatal(err)
	}

	msg := readType(t, ws)
	if msg["type"] != session.TypeError || msg["message"] != "Authentication required" {
		t.Errorf("expected unauthenticated error, got %v", msg)
	}
}

func TestServer_OversizedMessageGetsError(t *testing.T) {
	_, srv := newTestServer(t, 5, DefaultConfig(1024))
	ws := dial(t, srv)
	readType(t, ws)

	big := `{"cmd":"ping","pad":"` + strings.Repeat("x", 4096) + `"}`
	if err := ws.WriteMessage(websocket.TextMessage, []byte(big)); err != nil {
		t.Fatal(err)
	}
	msg := readType(t, ws)
	if msg["type"] != session.TypeError || msg["message"] != "Message too large" {
		t.Fatalf("expected message too large error, got %v", msg)
	}

	// The socket stays usable
	if err := ws.WriteJSON(map[string]string{"cmd": "ping"}); err != nil {
		t.Fatal(err)
	}
	if msg := readType(t, ws); msg["message"] != "Authentication required" {
		t.Errorf("expected unauthenticated error, got %v", msg)
	}
}

func TestDefaultConfig_ReadLimit(t *testing.T) {
	if got := DefaultConfig(1024).ReadLimit; got != MinReadLimit {
		t.Errorf("expected %d, got %d", MinReadLimit, got)
	}
	if got := DefaultConfig(8192).ReadLimit; got != 8192*16 {
		t.Errorf("expected %d, got %d", 8192*16, got)
	}
}

func TestServer_TableFull(t *testing.T) {
	_, srv := newTestServer(t, 1, DefaultConfig(1024))
	first := dial(t, srv)
	readType(t, first)

	second := dial(t, srv)
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := second.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Errorf("expected policy violation close, got %v", err)
	}
}

func TestServer_ClientCloseFreesSlot(t *testing.T) {
	hub, srv := newTestServer(t, 5, DefaultConfig(1024))
	ws := dial(t, srv)
	readType(t, ws)

	if occupied, _ := hub.Table().Counts(); occupied != 1 {
		t.Fatalf("expected 1 occupied slot, got %d", occupied)
	}
	ws.Close()

	waitFor(t, "slot release", func() bool {
		occupied, _ := hub.Table().Counts()
		return occupied == 0
	})
}

func TestServer_HubDisconnectClosesSocket(t *testing.T) {
	hub, srv := newTestServer(t, 5, DefaultConfig(1024))
	ws := dial(t, srv)
	msg := readType(t, ws)

	if err := hub.Disconnect(int(msg["clientId"].(float64))); err != nil {
		t.Fatal(err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Error("expected the socket to be closed")
	}
}

// ============================================================
// Heartbeat Tests
// ============================================================

func TestServer_MissedPongsClose(t *testing.T) {
	cfg := DefaultConfig(1024)
	cfg.PingInterval = 20 * time.Millisecond
	cfg.MaxMissedPongs = 2
	hub, srv := newTestServer(t, 5, cfg)

	// No reads on this side, so pings are never answered
	dial(t, srv)
	waitFor(t, "slot claim", func() bool {
		occupied, _ := hub.Table().Counts()
		return occupied == 1
	})
	waitFor(t, "heartbeat disconnect", func() bool {
		occupied, _ := hub.Table().Counts()
		return occupied == 0
	})
}

func TestServer_AnsweredPingsKeepAlive(t *testing.T) {
	cfg := DefaultConfig(1024)
	cfg.PingInterval = 20 * time.Millisecond
	cfg.MaxMissedPongs = 2
	hub, srv := newTestServer(t, 5, cfg)

	ws := dial(t, srv)
	go func() {
		// Reading runs the default ping handler, which answers with pongs
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	time.Sleep(200 * time.Millisecond)
	if occupied, _ := hub.Table().Counts(); occupied != 1 {
		t.Errorf("client with answered pings was dropped")
	}
}
