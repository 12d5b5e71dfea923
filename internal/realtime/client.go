package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/flitdev/flit/internal/logger"
	"github.com/gorilla/websocket"
)

const sendQueueSize = 256

// Client is one live connection. Reads and writes each run in their own
// goroutine; all outbound traffic goes through the buffered send queue so the
// hub never blocks on a slow connection.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	deviceID string

	send chan Event

	closeOnce sync.Once

	writeTimeout time.Duration
	pongTimeout  time.Duration
	maxFrameSize int64
}

// ClientOptions carries the connection tuning knobs from configuration.
type ClientOptions struct {
	WriteTimeout time.Duration
	PongTimeout  time.Duration
	MaxFrameSize int64
}

func NewClient(hub *Hub, conn *websocket.Conn, deviceID string, opts ClientOptions) *Client {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = 60 * time.Second
	}
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = 1 << 20
	}
	return &Client{
		hub:          hub,
		conn:         conn,
		deviceID:     deviceID,
		send:         make(chan Event, sendQueueSize),
		writeTimeout: opts.WriteTimeout,
		pongTimeout:  opts.PongTimeout,
		maxFrameSize: opts.MaxFrameSize,
	}
}

// DeviceID returns the device identity this connection was opened under.
func (c *Client) DeviceID() string {
	return c.deviceID
}

// enqueue offers an event to the connection's send queue without blocking.
// It reports false when the queue is full or already closed, which the hub
// treats as a dead connection.
func (c *Client) enqueue(ev Event) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// close shuts the send queue, which in turn stops WritePump. Safe to call
// more than once.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// ReadPump consumes inbound frames until the connection drops, dispatching
// the small client-to-server vocabulary: ping, typing, broadcast and
// get_online_devices. Malformed or unknown frames get an error event back but
// keep the connection open. On exit the connection is unregistered and, if it
// was the device's last one, the offline transition is announced.
func (c *Client) ReadPump() {
	defer func() {
		if deviceID, last := c.hub.Unregister(c); last {
			c.hub.BroadcastDeviceStatus(deviceID, StatusOffline)
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("unexpected websocket close", "device_id", c.deviceID, "error", err)
			}
			return
		}
		// Any frame proves liveness, not just pong control frames.
		c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			ev := newEvent(EventError)
			ev.Message = "invalid message format"
			c.hub.SendToClient(ev, c)
			continue
		}
		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(frame Frame) {
	switch frame.Type {
	case FramePing:
		c.hub.SendToClient(newEvent(EventPong), c)
	case FrameTyping:
		c.hub.BroadcastTyping(c.deviceID, frame.IsTyping)
	case FrameBroadcast:
		ev := newEvent(EventBroadcast)
		ev.DeviceID = c.deviceID
		ev.Content = frame.Content
		c.hub.Broadcast(ev, "")
	case FrameGetOnlineDevices:
		ev := newEvent(EventOnlineDevices)
		ev.Devices = c.hub.OnlineDevices()
		// count reports connections, not devices; one device may hold several
		ev.Count = c.hub.ConnectionCount("")
		c.hub.SendToClient(ev, c)
	default:
		ev := newEvent(EventError)
		ev.Message = "unknown message type: " + frame.Type
		c.hub.SendToClient(ev, c)
	}
}

// WritePump drains the send queue onto the wire and keeps the connection
// alive with periodic pings. It exits when the queue is closed or a write
// fails.
func (c *Client) WritePump() {
	pingInterval := c.pongTimeout * 9 / 10
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				logger.Debug("websocket write failed", "device_id", c.deviceID, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
