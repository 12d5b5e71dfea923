package realtime

import "time"

// Event types pushed to clients.
const (
	EventConnected      = "connected"
	EventDeviceStatus   = "device_status"
	EventNewMessage     = "new_message"
	EventMessageDeleted = "message_deleted"
	EventTyping         = "typing"
	EventBroadcast      = "broadcast"
	EventOnlineDevices  = "online_devices"
	EventPong           = "pong"
	EventError          = "error"
)

// Device presence states carried by device_status events.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Event is the envelope for every frame pushed to a client. Only the fields
// relevant to the event type are populated.
type Event struct {
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	Message       string    `json:"message,omitempty"`
	DeviceID      string    `json:"device_id,omitempty"`
	Status        string    `json:"status,omitempty"`
	OnlineDevices []string  `json:"online_devices,omitempty"`
	Devices       []string  `json:"devices,omitempty"`
	Count         int       `json:"count,omitempty"`
	IsTyping      bool      `json:"is_typing,omitempty"`
	Content       string    `json:"content,omitempty"`
	Data          any       `json:"data,omitempty"`
	MessageID     uint      `json:"message_id,omitempty"`
}

func newEvent(eventType string) Event {
	return Event{Type: eventType, Timestamp: time.Now().UTC()}
}

// NewConnectedEvent is the welcome frame sent right after registration.
func NewConnectedEvent(deviceID string, onlineDevices []string) Event {
	ev := newEvent(EventConnected)
	ev.Message = "connected as " + deviceID
	ev.DeviceID = deviceID
	ev.OnlineDevices = onlineDevices
	return ev
}

// Frame is a message received from a client, dispatched on Type.
type Frame struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"is_typing"`
	Content  string `json:"content"`
}

// Client frame types.
const (
	FramePing             = "ping"
	FrameTyping           = "typing"
	FrameBroadcast        = "broadcast"
	FrameGetOnlineDevices = "get_online_devices"
)
