package handlers

import (
	"net/http"

	"github.com/flitdev/flit/internal/config"
	"github.com/flitdev/flit/internal/httpx"
	"github.com/flitdev/flit/internal/logger"
	"github.com/flitdev/flit/internal/realtime"
	"github.com/gorilla/websocket"
)

// WSHandler upgrades connections and registers them with the hub.
type WSHandler struct {
	hub      *realtime.Hub
	cfg      *config.Config
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *realtime.Hub, cfg *config.Config) *WSHandler {
	return &WSHandler{
		hub: hub,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin is not restricted; access control happens at the
				// token gate and CORS layer for the REST surface.
				return true
			},
		},
	}
}

// Serve handles GET /ws. The device identity comes from the device_id query
// parameter and defaults to "unknown".
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		deviceID = "unknown"
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error to the client.
		logger.Warn("websocket upgrade failed", "device_id", deviceID, "error", err)
		return
	}

	client := realtime.NewClient(h.hub, conn, deviceID, realtime.ClientOptions{
		WriteTimeout: h.cfg.WSWriteTimeout,
		PongTimeout:  h.cfg.WSPongTimeout,
		MaxFrameSize: h.cfg.WSMaxFrameSize,
	})
	h.hub.Register(client, deviceID)

	go client.WritePump()

	welcome := realtime.NewConnectedEvent(deviceID, h.hub.OnlineDevices())
	h.hub.SendToClient(welcome, client)

	client.ReadPump()
}

// Stats handles GET /ws/stats.
func (h *WSHandler) Stats(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.hub.Stats())
}
