// Package realtime tracks live client connections keyed by device identity
// and fans domain events out to them. The hub is constructed explicitly and
// injected wherever connections are handled or events are emitted.
package realtime

import (
	"sort"
	"sync"

	"github.com/flitdev/flit/internal/logger"
	"github.com/flitdev/flit/internal/metrics"
	"github.com/maruel/natural"
)

// Hub is the connection registry. A device may hold several concurrent
// connections (e.g., multiple browser tabs); removing the last connection for
// a device removes the device entirely.
type Hub struct {
	mu sync.RWMutex
	// deviceID -> live connections for that device
	devices map[string]map[*Client]struct{}
	// reverse mapping; a connection belongs to at most one device
	clients map[*Client]string
}

func NewHub() *Hub {
	return &Hub{
		devices: make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]string),
	}
}

// Register adds a connection to the device's connection set and announces the
// device's online status to everyone.
func (h *Hub) Register(c *Client, deviceID string) {
	h.mu.Lock()
	set, ok := h.devices[deviceID]
	if !ok {
		set = make(map[*Client]struct{})
		h.devices[deviceID] = set
	}
	set[c] = struct{}{}
	h.clients[c] = deviceID
	h.mu.Unlock()

	metrics.WebsocketConnections.Inc()
	logger.Info("connection registered", "device_id", deviceID)

	h.BroadcastDeviceStatus(deviceID, StatusOnline)
}

// Unregister removes a connection. It returns the device the connection
// belonged to and whether that device now has no connections left (the caller
// announces the offline transition in that case).
func (h *Hub) Unregister(c *Client) (deviceID string, last bool) {
	h.mu.Lock()
	deviceID, ok := h.clients[c]
	if !ok {
		h.mu.Unlock()
		return "", false
	}
	delete(h.clients, c)
	if set, ok := h.devices[deviceID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.devices, deviceID)
			last = true
		}
	}
	h.mu.Unlock()

	metrics.WebsocketConnections.Dec()
	c.close()
	logger.Info("connection unregistered", "device_id", deviceID, "last", last)
	return deviceID, last
}

// SendToClient delivers an event to one connection, best-effort. A delivery
// failure is logged and the dead connection is pruned; it never propagates to
// the caller.
func (h *Hub) SendToClient(ev Event, c *Client) {
	if !c.enqueue(ev) {
		logger.Warn("dropping dead connection", "event", ev.Type)
		if deviceID, last := h.Unregister(c); last {
			h.BroadcastDeviceStatus(deviceID, StatusOffline)
		}
	}
}

// SendToDevice fans an event out to every live connection of one device.
// Connections that fail to accept the event are unregistered in-call: dead
// connections are pruned lazily on first failed use, not by background sweep.
func (h *Hub) SendToDevice(ev Event, deviceID string) {
	h.mu.RLock()
	snapshot := make([]*Client, 0, len(h.devices[deviceID]))
	for c := range h.devices[deviceID] {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		h.SendToClient(ev, c)
	}
}

// Broadcast fans an event out to every connection of every device except the
// excluded one. Events are queued per connection and written by each
// connection's own writer, so one slow or dead connection never blocks
// delivery to the others.
func (h *Hub) Broadcast(ev Event, excludeDevice string) {
	h.mu.RLock()
	snapshot := make([]*Client, 0, len(h.clients))
	for deviceID, set := range h.devices {
		if excludeDevice != "" && deviceID == excludeDevice {
			continue
		}
		for c := range set {
			snapshot = append(snapshot, c)
		}
	}
	h.mu.RUnlock()

	metrics.BroadcastsTotal.WithLabelValues(ev.Type).Inc()

	for _, c := range snapshot {
		h.SendToClient(ev, c)
	}
}

// OnlineDevices returns the currently connected device identities in natural
// order (device-2 before device-10).
func (h *Hub) OnlineDevices() []string {
	h.mu.RLock()
	devices := make([]string, 0, len(h.devices))
	for deviceID := range h.devices {
		devices = append(devices, deviceID)
	}
	h.mu.RUnlock()

	sort.Sort(natural.StringSlice(devices))
	return devices
}

// ConnectionCount returns the number of live connections, for one device or
// in total when deviceID is empty.
func (h *Hub) ConnectionCount(deviceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if deviceID != "" {
		return len(h.devices[deviceID])
	}
	return len(h.clients)
}

// BroadcastDeviceStatus announces a presence transition with the current
// online device list.
func (h *Hub) BroadcastDeviceStatus(deviceID, status string) {
	ev := newEvent(EventDeviceStatus)
	ev.DeviceID = deviceID
	ev.Status = status
	ev.OnlineDevices = h.OnlineDevices()
	h.Broadcast(ev, "")
}

// BroadcastNewMessage announces a freshly created ledger entry.
func (h *Hub) BroadcastNewMessage(payload any) {
	ev := newEvent(EventNewMessage)
	ev.Data = payload
	h.Broadcast(ev, "")
}

// BroadcastMessageDeleted announces a ledger deletion.
func (h *Hub) BroadcastMessageDeleted(messageID uint) {
	ev := newEvent(EventMessageDeleted)
	ev.MessageID = messageID
	h.Broadcast(ev, "")
}

// BroadcastTyping fans a typing indicator out to every device except the one
// typing.
func (h *Hub) BroadcastTyping(deviceID string, isTyping bool) {
	ev := newEvent(EventTyping)
	ev.DeviceID = deviceID
	ev.IsTyping = isTyping
	h.Broadcast(ev, deviceID)
}

// Stats describes the registry for the /ws/stats endpoint.
type Stats struct {
	OnlineDevices     []string       `json:"online_devices"`
	TotalConnections  int            `json:"total_connections"`
	DeviceConnections map[string]int `json:"device_connections"`
}

// Stats returns a consistent snapshot of the registry.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	stats := Stats{
		TotalConnections:  len(h.clients),
		DeviceConnections: make(map[string]int, len(h.devices)),
	}
	for deviceID, set := range h.devices {
		stats.DeviceConnections[deviceID] = len(set)
	}
	h.mu.RUnlock()

	stats.OnlineDevices = h.OnlineDevices()
	return stats
}
