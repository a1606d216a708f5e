package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/homecore/internal/automation"
	"github.com/nerrad567/homecore/internal/device"
	"github.com/nerrad567/homecore/internal/infrastructure/config"
	"github.com/nerrad567/homecore/internal/infrastructure/logging"
	"github.com/nerrad567/homecore/internal/infrastructure/mqtt"
)

type wsEnvelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	Timestamp string          `json:"timestamp"`
}

// dialWS connects to a test server and consumes the initial_state
// envelope, which must arrive first.
func dialWS(t *testing.T, env *testEnv) (*websocket.Conn, Snapshot) {
	t.Helper()

	ts := httptest.NewServer(env.handler)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + env.token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { conn.Close() })

	env1 := readEnvelope(t, conn)
	if env1.Type != WSTypeInitialState {
		t.Fatalf("first envelope type = %q, want %q", env1.Type, WSTypeInitialState)
	}
	var snap Snapshot
	if err := json.Unmarshal(env1.Data, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	return conn, snap
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wsEnvelope {
	t.Helper()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env wsEnvelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	return env
}

func send(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write message: %v", err)
	}
}

// readUntil skips broadcasts until an envelope of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) wsEnvelope {
	t.Helper()
	for i := 0; i < 10; i++ {
		if env := readEnvelope(t, conn); env.Type == msgType {
			return env
		}
	}
	t.Fatalf("no %q envelope received", msgType)
	return wsEnvelope{}
}

func TestWebSocket_InitialState(t *testing.T) {
	env := newTestEnv(t)
	_, snap := dialWS(t, env)

	if len(snap.Rooms) != 2 || len(snap.Devices) != 3 || snap.Scenes == nil {
		t.Errorf("snapshot = %d rooms, %d devices, scenes %v", len(snap.Rooms), len(snap.Devices), snap.Scenes)
	}
	if env.srv.hub.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", env.srv.hub.ClientCount())
	}
}

func TestWebSocket_RejectsWithoutToken(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	base := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	for _, url := range []string{base, base + "?token=bogus"} {
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			t.Fatalf("Dial(%s) succeeded, want rejection", url)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("Dial(%s) response = %v, want 401", url, resp)
		}
	}
}

func TestWebSocket_PingAndState(t *testing.T) {
	env := newTestEnv(t)
	conn, _ := dialWS(t, env)

	send(t, conn, ClientMessage{Type: WSTypePing})
	if got := readEnvelope(t, conn); got.Type != WSTypePong || got.Timestamp == "" {
		t.Errorf("ping reply = %+v", got)
	}

	send(t, conn, ClientMessage{Type: WSTypeGetState})
	if got := readEnvelope(t, conn); got.Type != WSTypeInitialState {
		t.Errorf("get_state reply type = %q", got.Type)
	}
}

func TestWebSocket_Errors(t *testing.T) {
	env := newTestEnv(t)
	conn, _ := dialWS(t, env)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readEnvelope(t, conn); got.Type != WSTypeError || got.Message != "Invalid message format" {
		t.Errorf("invalid JSON reply = %+v", got)
	}

	tests := []struct {
		msg     ClientMessage
		message string
	}{
		{ClientMessage{Type: "dance"}, "Unknown message type: dance"},
		{ClientMessage{Type: WSTypeGetDevice, DeviceID: "ghost"}, "Device not found"},
		{ClientMessage{Type: WSTypeToggleDevice, DeviceID: "ghost"}, "Device not found"},
		{ClientMessage{Type: WSTypeControlDevice, DeviceID: "ghost", Command: device.State{"on": true}}, "Device not found"},
		{ClientMessage{Type: WSTypeGetRoom, RoomID: "ghost"}, "Room not found"},
		{ClientMessage{Type: WSTypeExecuteScene, SceneID: "ghost"}, "Scene not found"},
	}
	for _, tt := range tests {
		send(t, conn, tt.msg)
		if got := readEnvelope(t, conn); got.Type != WSTypeError || got.Message != tt.message {
			t.Errorf("%s reply = %+v, want error %q", tt.msg.Type, got, tt.message)
		}
	}

	// The connection survives every error.
	send(t, conn, ClientMessage{Type: WSTypePing})
	if got := readEnvelope(t, conn); got.Type != WSTypePong {
		t.Errorf("ping after errors = %q", got.Type)
	}
}

func TestWebSocket_ControlBroadcastsToAll(t *testing.T) {
	env := newTestEnv(t)
	sender, _ := dialWS(t, env)
	watcher, _ := dialWS(t, env)

	send(t, sender, ClientMessage{Type: WSTypeControlDevice, DeviceID: "bedroom_ac", Command: device.State{"on": true, "temperature": 22}})

	reply := readUntil(t, sender, WSTypeControlResponse)
	var data struct {
		Success bool          `json:"success"`
		Device  device.Device `json:"device"`
	}
	if err := json.Unmarshal(reply.Data, &data); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if !data.Success || data.Device.State["temperature"] != float64(22) {
		t.Errorf("control_response = %+v", data)
	}

	update := readUntil(t, watcher, device.EventDeviceUpdate)
	var dev device.Device
	if err := json.Unmarshal(update.Data, &dev); err != nil {
		t.Fatalf("unmarshal update: %v", err)
	}
	if dev.ID != "bedroom_ac" || dev.State["on"] != true {
		t.Errorf("device_update = %+v", dev)
	}
}

func TestWebSocket_CommandFailureGoesToSenderOnly(t *testing.T) {
	env := newTestEnv(t)
	env.publisher.setErr(mqtt.ErrNotConnected)
	conn, _ := dialWS(t, env)

	send(t, conn, ClientMessage{Type: WSTypeToggleDevice, DeviceID: "bedroom_ac"})
	reply := readEnvelope(t, conn)
	if reply.Type != WSTypeToggleResponse {
		t.Fatalf("reply type = %q", reply.Type)
	}
	var data map[string]any
	if err := json.Unmarshal(reply.Data, &data); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if data["success"] != false || data["error"] != "MQTT broker not connected" {
		t.Errorf("toggle_response = %v", data)
	}
}

func TestWebSocket_SceneRoomDevice(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.db.Exec(`INSERT INTO scenes (id, name, actions) VALUES ('all_off', 'All Off', '[{"device_id":"*","action":{"on":false}}]')`); err != nil {
		t.Fatalf("seed scene: %v", err)
	}
	conn, snap := dialWS(t, env)
	if len(snap.Scenes) != 1 {
		t.Fatalf("snapshot scenes = %d, want 1", len(snap.Scenes))
	}

	send(t, conn, ClientMessage{Type: WSTypeExecuteScene, SceneID: "all_off"})
	reply := readUntil(t, conn, WSTypeSceneResponse)
	var scene struct {
		Success bool `json:"success"`
		Results []struct {
			DeviceID string `json:"device_id"`
			Status   string `json:"status"`
		} `json:"results"`
	}
	if err := json.Unmarshal(reply.Data, &scene); err != nil {
		t.Fatalf("unmarshal scene reply: %v", err)
	}
	if !scene.Success || len(scene.Results) != 3 {
		t.Errorf("scene_response = %+v", scene)
	}

	send(t, conn, ClientMessage{Type: WSTypeGetRoom, RoomID: "living_room"})
	room := readUntil(t, conn, WSTypeRoomData)
	var roomData struct {
		Room RoomDetail `json:"room"`
	}
	if err := json.Unmarshal(room.Data, &roomData); err != nil {
		t.Fatalf("unmarshal room: %v", err)
	}
	if roomData.Room.ID != "living_room" || len(roomData.Room.Devices) != 2 {
		t.Errorf("room_data = %+v", roomData.Room)
	}

	send(t, conn, ClientMessage{Type: WSTypeGetDevice, DeviceID: "living_room_fan1"})
	devEnv := readUntil(t, conn, WSTypeDeviceData)
	var devData struct {
		Device device.Device `json:"device"`
	}
	if err := json.Unmarshal(devEnv.Data, &devData); err != nil {
		t.Fatalf("unmarshal device: %v", err)
	}
	if devData.Device.State["on"] != false {
		t.Errorf("device after all_off = %v", devData.Device.State)
	}
}

func TestHub_BroadcastSkipsClosedClients(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, logging.Discard())

	open := &WSClient{id: "open", hub: hub, send: make(chan []byte, 1)}
	closed := &WSClient{id: "closed", hub: hub, send: make(chan []byte, 1)}
	hub.Register(open)
	hub.Register(closed)
	close(closed.send) // closed underneath the hub

	hub.Broadcast(device.EventDeviceUpdate, map[string]string{"id": "x"})
	hub.Broadcast(device.EventDeviceUpdate, map[string]string{"id": "y"}) // open's buffer is full

	select {
	case msg := <-open.send:
		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if env.Type != device.EventDeviceUpdate || env.Timestamp == "" {
			t.Errorf("envelope = %+v", env)
		}
	default:
		t.Fatal("open client received nothing")
	}

	hub.mu.Lock()
	delete(hub.clients, closed)
	hub.mu.Unlock()
	hub.Unregister(open)
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
}

func TestHub_CloseAll(t *testing.T) {
	env := newTestEnv(t)
	conn, _ := dialWS(t, env)

	env.srv.hub.CloseAll()
	if env.srv.hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after CloseAll", env.srv.hub.ClientCount())
	}
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("read succeeded after CloseAll")
	}
}

type slowExecutor struct {
	delay time.Duration
}

func (e slowExecutor) Execute(ctx context.Context, sceneID string) (*automation.Execution, error) {
	select {
	case <-time.After(e.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &automation.Execution{SceneID: sceneID, Results: []automation.ActionResult{}}, nil
}

func TestWebSocket_LongSceneOutlivesReadDeadline(t *testing.T) {
	env := newTestEnv(t)
	// Read deadline of 2s; the scene takes longer.
	env.srv.hub.pingInterval = time.Second
	env.srv.hub.pongTimeout = time.Second
	env.srv.executor = slowExecutor{delay: 2500 * time.Millisecond}
	conn, _ := dialWS(t, env)

	send(t, conn, ClientMessage{Type: WSTypeExecuteScene, SceneID: "slow"})

	// The client answers server pings while it waits inside ReadJSON.
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var reply wsEnvelope
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("connection dropped during scene: %v", err)
	}
	if reply.Type != WSTypeSceneResponse {
		t.Fatalf("reply type = %q, want %q", reply.Type, WSTypeSceneResponse)
	}

	send(t, conn, ClientMessage{Type: WSTypePing})
	if got := readEnvelope(t, conn); got.Type != WSTypePong {
		t.Errorf("ping after scene = %q", got.Type)
	}
}
