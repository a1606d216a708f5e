package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/homecore/internal/auth"
	"github.com/nerrad567/homecore/internal/automation"
	"github.com/nerrad567/homecore/internal/device"
	"github.com/nerrad567/homecore/internal/infrastructure/config"
	"github.com/nerrad567/homecore/internal/infrastructure/logging"
	"github.com/nerrad567/homecore/internal/location"
)

// Envelope types sent by the server.
const (
	WSTypeInitialState    = "initial_state"
	WSTypeControlResponse = "control_response"
	WSTypeToggleResponse  = "toggle_response"
	WSTypeSceneResponse   = "scene_response"
	WSTypeRoomData        = "room_data"
	WSTypeDeviceData      = "device_data"
	WSTypePong            = "pong"
	WSTypeError           = "error"
)

// Message types sent by clients.
const (
	WSTypeGetState      = "get_state"
	WSTypeControlDevice = "control_device"
	WSTypeToggleDevice  = "toggle_device"
	WSTypeExecuteScene  = "execute_scene"
	WSTypeGetRoom       = "get_room"
	WSTypeGetDevice     = "get_device"
	WSTypePing          = "ping"
)

const (
	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256

	// wsInboxSize bounds client messages queued behind a running one.
	wsInboxSize = 16

	defaultMaxMessageSize = 64 * 1024
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
)

// Envelope is a message sent from the server to a client.
type Envelope struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ClientMessage is a message sent from a client. Fields are flat and only
// the ones relevant to Type are set.
type ClientMessage struct {
	Type     string       `json:"type"`
	DeviceID string       `json:"device_id,omitempty"`
	Command  device.State `json:"command,omitempty"`
	SceneID  string       `json:"scene_id,omitempty"`
	RoomID   string       `json:"room_id,omitempty"`
}

// Snapshot is the data of an initial_state envelope.
type Snapshot struct {
	Rooms   []location.Room    `json:"rooms"`
	Devices []device.Device    `json:"devices"`
	Scenes  []automation.Scene `json:"scenes"`
}

// Hub manages WebSocket connections and broadcasts events.
type Hub struct {
	maxMessageSize int64
	pingInterval   time.Duration
	pongTimeout    time.Duration
	logger         *logging.Logger
	now            func() time.Time

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// WSClient is one connected socket.
type WSClient struct {
	id       string
	hub      *Hub
	srv      *Server
	conn     *websocket.Conn
	send     chan []byte
	inbox    chan []byte
	identity auth.Identity
}

// NewHub creates a new WebSocket hub. Zero config values take defaults.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	h := &Hub{
		maxMessageSize: int64(cfg.MaxMessageSize),
		pingInterval:   time.Duration(cfg.PingInterval) * time.Second,
		pongTimeout:    time.Duration(cfg.PongTimeout) * time.Second,
		logger:         logger,
		now:            time.Now,
		clients:        make(map[*WSClient]struct{}),
	}
	if h.maxMessageSize <= 0 {
		h.maxMessageSize = defaultMaxMessageSize
	}
	if h.pingInterval <= 0 {
		h.pingInterval = defaultPingInterval
	}
	if h.pongTimeout <= 0 {
		h.pongTimeout = defaultPongTimeout
	}
	return h
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "client_id", client.id, "subject", client.identity.Subject, "clients", n)
}

// Unregister removes a client from the hub. Only the caller that removes
// the client closes its send channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
		h.logger.Debug("websocket client disconnected", "client_id", client.id, "clients", n)
	}
}

// Broadcast sends an event to every connected client. Clients that are
// closing or too slow to keep up are skipped.
func (h *Hub) Broadcast(eventType string, data any) {
	msg, err := h.encode(Envelope{Type: eventType, Data: data})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "type", eventType, "error", err)
		return
	}

	// Snapshot client list under hub lock, then release before sending
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.trySend(msg)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

func (h *Hub) encode(env Envelope) ([]byte, error) {
	env.Timestamp = h.now().UTC().Format(time.RFC3339)
	return json.Marshal(env)
}

// handleWebSocket authenticates, upgrades, queues the snapshot and only
// then registers the client, so no broadcast can overtake the snapshot.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.isAllowedOrigin(origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		id:       uuid.NewString(),
		hub:      s.hub,
		srv:      s,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		inbox:    make(chan []byte, wsInboxSize),
		identity: identity,
	}

	ctx, cancel := context.WithCancel(context.Background())
	client.sendSnapshot(ctx)
	s.hub.Register(client)

	go client.writePump()
	go client.dispatch(ctx)
	go client.readPump(cancel)
}

// readPump reads client messages and queues them for dispatch. It never
// runs a command itself, so pongs keep extending the deadline while a long
// scene executes.
func (c *WSClient) readPump(cancel context.CancelFunc) {
	defer func() {
		close(c.inbox)
		cancel()
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	deadline := c.hub.pingInterval + c.hub.pongTimeout
	c.conn.SetReadLimit(c.hub.maxMessageSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "client_id", c.id, "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "client_id", c.id, "error", err)
			}
			return
		}
		// Any client message counts as liveness.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(deadline))

		select {
		case c.inbox <- message:
		default:
			c.sendError("Too many pending requests")
		}
	}
}

// dispatch handles queued messages one at a time, in arrival order.
func (c *WSClient) dispatch(ctx context.Context) {
	for message := range c.inbox {
		c.handleMessage(ctx, message)
	}
}

// writePump writes queued messages and keeps the connection alive with pings.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.pongTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.pongTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one client message. Every reply goes to this
// client only.
func (c *WSClient) handleMessage(ctx context.Context, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("Invalid message format")
		return
	}

	switch msg.Type {
	case WSTypeGetState:
		c.sendSnapshot(ctx)
	case WSTypeControlDevice:
		c.handleControl(ctx, msg)
	case WSTypeToggleDevice:
		c.handleToggle(ctx, msg)
	case WSTypeExecuteScene:
		c.handleExecuteScene(ctx, msg)
	case WSTypeGetRoom:
		c.handleGetRoom(ctx, msg)
	case WSTypeGetDevice:
		c.handleGetDevice(ctx, msg)
	case WSTypePing:
		c.sendEnvelope(Envelope{Type: WSTypePong})
	default:
		c.hub.logger.Debug("unknown websocket message type", "client_id", c.id, "type", msg.Type)
		c.sendError("Unknown message type: " + msg.Type)
	}
}

func (c *WSClient) sendSnapshot(ctx context.Context) {
	snap, err := c.srv.snapshot(ctx)
	if err != nil {
		c.hub.logger.Error("failed to build initial state", "client_id", c.id, "error", err)
		c.sendError("Failed to load state")
		return
	}
	c.sendEnvelope(Envelope{Type: WSTypeInitialState, Data: snap})
}

func (c *WSClient) handleControl(ctx context.Context, msg ClientMessage) {
	if msg.Command == nil {
		c.sendError("command is required")
		return
	}
	dev, err := c.srv.controller.Command(ctx, msg.DeviceID, msg.Command)
	c.sendCommandResult(WSTypeControlResponse, dev, err)
}

func (c *WSClient) handleToggle(ctx context.Context, msg ClientMessage) {
	dev, err := c.srv.controller.Toggle(ctx, msg.DeviceID)
	c.sendCommandResult(WSTypeToggleResponse, dev, err)
}

// sendCommandResult replies to a control or toggle. A missing device is an
// error envelope; any other failure is a response with success=false.
func (c *WSClient) sendCommandResult(msgType string, dev *device.Device, err error) {
	if errors.Is(err, device.ErrDeviceNotFound) {
		c.sendError("Device not found")
		return
	}
	if err != nil {
		c.hub.logger.Warn("websocket device command failed", "client_id", c.id, "error", err)
		_, _, message := classify(err)
		c.sendEnvelope(Envelope{Type: msgType, Data: map[string]any{"success": false, "error": message}})
		return
	}
	c.sendEnvelope(Envelope{Type: msgType, Data: map[string]any{"success": true, "device": dev}})
}

func (c *WSClient) handleExecuteScene(ctx context.Context, msg ClientMessage) {
	exec, err := c.srv.executor.Execute(ctx, msg.SceneID)
	if errors.Is(err, automation.ErrSceneNotFound) {
		c.sendError("Scene not found")
		return
	}
	if err != nil {
		c.hub.logger.Error("websocket scene execution failed", "client_id", c.id, "scene_id", msg.SceneID, "error", err)
		c.sendEnvelope(Envelope{Type: WSTypeSceneResponse, Data: map[string]any{"success": false, "error": "Failed to execute scene"}})
		return
	}
	c.sendEnvelope(Envelope{Type: WSTypeSceneResponse, Data: map[string]any{
		"success":  true,
		"scene_id": exec.SceneID,
		"results":  exec.Results,
	}})
}

func (c *WSClient) handleGetRoom(ctx context.Context, msg ClientMessage) {
	detail, err := c.srv.roomDetail(ctx, msg.RoomID)
	if errors.Is(err, location.ErrRoomNotFound) {
		c.sendError("Room not found")
		return
	}
	if err != nil {
		c.hub.logger.Error("websocket get room failed", "client_id", c.id, "room_id", msg.RoomID, "error", err)
		c.sendError("Failed to fetch room")
		return
	}
	c.sendEnvelope(Envelope{Type: WSTypeRoomData, Data: map[string]any{"room": detail}})
}

func (c *WSClient) handleGetDevice(ctx context.Context, msg ClientMessage) {
	dev, err := c.srv.devices.GetByID(ctx, msg.DeviceID)
	if errors.Is(err, device.ErrDeviceNotFound) {
		c.sendError("Device not found")
		return
	}
	if err != nil {
		c.hub.logger.Error("websocket get device failed", "client_id", c.id, "device_id", msg.DeviceID, "error", err)
		c.sendError("Failed to fetch device")
		return
	}
	c.sendEnvelope(Envelope{Type: WSTypeDeviceData, Data: map[string]any{"device": dev}})
}

// trySend queues data without blocking. Sends to a closed or full client
// are dropped.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("websocket client buffer full, dropping message", "client_id", c.id)
	}
}

func (c *WSClient) sendEnvelope(env Envelope) {
	data, err := c.hub.encode(env)
	if err != nil {
		c.hub.logger.Error("failed to marshal websocket message", "type", env.Type, "error", err)
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(message string) {
	c.sendEnvelope(Envelope{Type: WSTypeError, Message: message})
}

// snapshot loads the full state sent to new clients.
func (s *Server) snapshot(ctx context.Context) (*Snapshot, error) {
	rooms, err := s.rooms.List(ctx)
	if err != nil {
		return nil, err
	}
	devices, err := s.devices.List(ctx)
	if err != nil {
		return nil, err
	}
	scenes, err := s.scenes.List(ctx)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Rooms: rooms, Devices: devices, Scenes: scenes}, nil
}
