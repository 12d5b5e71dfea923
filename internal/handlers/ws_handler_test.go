package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flitdev/flit/internal/config"
	"github.com/flitdev/flit/internal/realtime"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

func newWSTestServer(t *testing.T) (*httptest.Server, *realtime.Hub) {
	t.Helper()

	cfg := &config.Config{
		Env:            "test",
		WSWriteTimeout: 2 * time.Second,
		WSPongTimeout:  10 * time.Second,
		WSMaxFrameSize: 8192,
	}
	hub := realtime.NewHub()
	wsHandler := NewWSHandler(hub, cfg)

	router := chi.NewRouter()
	router.Get("/ws", wsHandler.Serve)
	router.Get("/ws/stats", wsHandler.Stats)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, hub
}

func dialWS(t *testing.T, server *httptest.Server, deviceID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?device_id=" + deviceID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads events until one matches the wanted type, skipping others
// (presence broadcasts interleave with direct replies).
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) realtime.Event {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		var ev realtime.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("reading for %q: %v", eventType, err)
		}
		if ev.Type == eventType {
			return ev
		}
	}
	t.Fatalf("no %q event before deadline", eventType)
	return realtime.Event{}
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame realtime.Frame) {
	t.Helper()

	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("writing frame: %v", err)
	}
}

func TestWebSocketConnectAndWelcome(t *testing.T) {
	server, hub := newWSTestServer(t)

	conn := dialWS(t, server, "phone")
	welcome := readUntil(t, conn, realtime.EventConnected)
	if welcome.DeviceID != "phone" {
		t.Errorf("welcome DeviceID = %q, want phone", welcome.DeviceID)
	}

	waitForDevices(t, hub, 1)
	if got := hub.OnlineDevices(); len(got) != 1 || got[0] != "phone" {
		t.Errorf("OnlineDevices = %v, want [phone]", got)
	}
}

func TestWebSocketPingPong(t *testing.T) {
	server, _ := newWSTestServer(t)

	conn := dialWS(t, server, "phone")
	readUntil(t, conn, realtime.EventConnected)

	sendFrame(t, conn, realtime.Frame{Type: realtime.FramePing})
	readUntil(t, conn, realtime.EventPong)
}

func TestWebSocketOnlineDevices(t *testing.T) {
	server, hub := newWSTestServer(t)

	alpha := dialWS(t, server, "alpha")
	readUntil(t, alpha, realtime.EventConnected)
	beta := dialWS(t, server, "beta")
	readUntil(t, beta, realtime.EventConnected)
	waitForDevices(t, hub, 2)

	sendFrame(t, alpha, realtime.Frame{Type: realtime.FrameGetOnlineDevices})
	reply := readUntil(t, alpha, realtime.EventOnlineDevices)
	if reply.Count != 2 || len(reply.Devices) != 2 {
		t.Errorf("online devices reply = %+v, want 2 devices", reply)
	}

	// A second connection for the same device keeps the device list intact
	// but raises the connection count.
	beta2 := dialWS(t, server, "beta")
	readUntil(t, beta2, realtime.EventConnected)
	waitForConnections(t, hub, 3)

	sendFrame(t, alpha, realtime.Frame{Type: realtime.FrameGetOnlineDevices})
	reply = readUntil(t, alpha, realtime.EventOnlineDevices)
	if len(reply.Devices) != 2 {
		t.Errorf("devices = %v, want 2 entries", reply.Devices)
	}
	if reply.Count != 3 {
		t.Errorf("count = %d, want 3 connections", reply.Count)
	}
}

func TestWebSocketTypingExcludesOrigin(t *testing.T) {
	server, hub := newWSTestServer(t)

	alpha := dialWS(t, server, "alpha")
	readUntil(t, alpha, realtime.EventConnected)
	beta := dialWS(t, server, "beta")
	readUntil(t, beta, realtime.EventConnected)
	waitForDevices(t, hub, 2)

	sendFrame(t, alpha, realtime.Frame{Type: realtime.FrameTyping, IsTyping: true})

	typing := readUntil(t, beta, realtime.EventTyping)
	if typing.DeviceID != "alpha" || !typing.IsTyping {
		t.Errorf("typing event = %+v, want alpha typing", typing)
	}

	// The origin must not receive an echo of its own typing. Read everything
	// up to a pong and make sure no typing event slipped in.
	sendFrame(t, alpha, realtime.Frame{Type: realtime.FramePing})
	deadline := time.Now().Add(3 * time.Second)
	alpha.SetReadDeadline(deadline)
	for {
		var ev realtime.Event
		if err := alpha.ReadJSON(&ev); err != nil {
			t.Fatalf("reading origin events: %v", err)
		}
		if ev.Type == realtime.EventTyping {
			t.Fatal("typing event echoed back to its origin")
		}
		if ev.Type == realtime.EventPong {
			break
		}
	}
}

func TestWebSocketMalformedFrame(t *testing.T) {
	server, _ := newWSTestServer(t)

	conn := dialWS(t, server, "phone")
	readUntil(t, conn, realtime.EventConnected)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("writing malformed frame: %v", err)
	}
	errEvent := readUntil(t, conn, realtime.EventError)
	if errEvent.Message == "" {
		t.Error("error event carries no message")
	}

	// Connection stays usable
	sendFrame(t, conn, realtime.Frame{Type: realtime.FramePing})
	readUntil(t, conn, realtime.EventPong)
}

func TestWebSocketUnknownFrameType(t *testing.T) {
	server, _ := newWSTestServer(t)

	conn := dialWS(t, server, "phone")
	readUntil(t, conn, realtime.EventConnected)

	sendFrame(t, conn, realtime.Frame{Type: "teleport"})
	errEvent := readUntil(t, conn, realtime.EventError)
	if !strings.Contains(errEvent.Message, "teleport") {
		t.Errorf("error message = %q, should name the unknown type", errEvent.Message)
	}
}

func TestWebSocketStatsEndpoint(t *testing.T) {
	server, hub := newWSTestServer(t)

	conn := dialWS(t, server, "phone")
	readUntil(t, conn, realtime.EventConnected)
	waitForDevices(t, hub, 1)

	resp, err := http.Get(server.URL + "/ws/stats")
	if err != nil {
		t.Fatalf("GET /ws/stats: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d", resp.StatusCode)
	}

	var stats realtime.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if stats.TotalConnections != 1 {
		t.Errorf("TotalConnections = %d, want 1", stats.TotalConnections)
	}
	if stats.DeviceConnections["phone"] != 1 {
		t.Errorf("DeviceConnections = %v", stats.DeviceConnections)
	}
}

func TestWebSocketDisconnectAnnouncesOffline(t *testing.T) {
	server, hub := newWSTestServer(t)

	alpha := dialWS(t, server, "alpha")
	readUntil(t, alpha, realtime.EventConnected)
	beta := dialWS(t, server, "beta")
	readUntil(t, beta, realtime.EventConnected)
	waitForDevices(t, hub, 2)

	beta.Close()

	// alpha sees beta drop off
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		ev := readUntil(t, alpha, realtime.EventDeviceStatus)
		if ev.DeviceID == "beta" && ev.Status == realtime.StatusOffline {
			return
		}
	}
	t.Fatal("no offline transition for beta")
}

// waitForDevices blocks until the hub sees the expected device count;
// registration races the dial returning.
func waitForDevices(t *testing.T, hub *realtime.Hub, want int) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(hub.OnlineDevices()) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("hub never reached %d devices (have %v)", want, hub.OnlineDevices())
}

// waitForConnections is the connection-count analog of waitForDevices.
func waitForConnections(t *testing.T, hub *realtime.Hub, want int) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ConnectionCount("") == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("hub never reached %d connections (have %d)", want, hub.ConnectionCount(""))
}
