package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/homecore/internal/device"
	"github.com/nerrad567/homecore/internal/infrastructure/database/dbtest"
	"github.com/nerrad567/homecore/internal/infrastructure/mqtt"
	"github.com/nerrad567/homecore/internal/telemetry"
)

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakeTransport struct {
	mu        sync.Mutex
	handlers  map[string]mqtt.MessageHandler
	qos       map[string]byte
	published []published
	connected bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers:  make(map[string]mqtt.MessageHandler),
		qos:       make(map[string]byte),
		connected: true,
	}
}

func (f *fakeTransport) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	f.qos[topic] = qos
	return nil
}

func (f *fakeTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return mqtt.ErrNotConnected
	}
	f.published = append(f.published, published{topic, payload, qos, retained})
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// deliver routes a message to the handler subscribed with the matching
// wildcard, the way the broker would.
func (f *fakeTransport) deliver(t *testing.T, topic, payload string) error {
	t.Helper()
	f.mu.Lock()
	var handler mqtt.MessageHandler
	for filter, h := range f.handlers {
		if topicMatches(filter, topic) {
			handler = h
		}
	}
	f.mu.Unlock()
	if handler == nil {
		t.Fatalf("no subscription matches %s", topic)
	}
	return handler(topic, []byte(payload))
}

func topicMatches(filter, topic string) bool {
	fp, tp := strings.Split(filter, "/"), strings.Split(topic, "/")
	if len(fp) != len(tp) {
		return false
	}
	for i := range fp {
		if fp[i] != "+" && fp[i] != tp[i] {
			return false
		}
	}
	return true
}

type event struct {
	eventType string
	data      any
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []event
}

func (f *fakeBroadcaster) Broadcast(eventType string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event{eventType, data})
}

func (f *fakeBroadcaster) all() []event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]event(nil), f.events...)
}

type fakeStates struct {
	patches map[string]device.State
	known   map[string]bool
}

func (f *fakeStates) ApplyPatch(_ context.Context, id string, patch device.State) (*device.Device, error) {
	if !f.known[id] {
		return nil, device.ErrDeviceNotFound
	}
	f.patches[id] = patch
	return &device.Device{ID: id, State: patch}, nil
}

type fakeRecorder struct {
	power []telemetry.PowerReading
	env   []telemetry.EnvironmentReading
	err   error
}

func (f *fakeRecorder) RecordPower(_ context.Context, _ string, readings []telemetry.PowerReading) ([]telemetry.PowerReading, error) {
	f.power = append(f.power, readings...)
	return readings, f.err
}

func (f *fakeRecorder) RecordEnvironment(_ context.Context, r telemetry.EnvironmentReading) (*telemetry.EnvironmentReading, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.env = append(f.env, r)
	return &r, nil
}

type fixture struct {
	bridge    *Bridge
	transport *fakeTransport
	states    *fakeStates
	recorder  *fakeRecorder
	hub       *fakeBroadcaster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		transport: newFakeTransport(),
		states:    &fakeStates{patches: map[string]device.State{}, known: map[string]bool{"living_room_light1": true}},
		recorder:  &fakeRecorder{},
		hub:       &fakeBroadcaster{},
	}
	b, err := New(Options{Transport: f.transport, States: f.states, Recorder: f.recorder, Broadcaster: f.hub})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	f.bridge = b
	return f
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("New() with no transport should fail")
	}
	if _, err := New(Options{Transport: newFakeTransport()}); err == nil {
		t.Error("New() without state applier should fail")
	}
}

func TestStart_Subscriptions(t *testing.T) {
	f := newFixture(t)

	var topics []string
	for topic, qos := range f.transport.qos {
		topics = append(topics, topic)
		if qos != 1 {
			t.Errorf("%s subscribed at QoS %d, want 1", topic, qos)
		}
	}
	sort.Strings(topics)
	want := []string{"home/+/+/status", "home/+/environment", "home/+/power"}
	if !reflect.DeepEqual(topics, want) {
		t.Errorf("subscriptions = %v, want %v", topics, want)
	}
}

func TestHandleStatus(t *testing.T) {
	f := newFixture(t)

	if err := f.transport.deliver(t, "home/living_room/light1/status", `{"on":true,"brightness":70}`); err != nil {
		t.Fatalf("deliver() error = %v", err)
	}
	got := f.states.patches["living_room_light1"]
	if got["on"] != true || got["brightness"] != 70.0 {
		t.Errorf("applied patch = %v", got)
	}

	// Unknown devices are dropped without an error.
	if err := f.transport.deliver(t, "home/garage/door/status", `{"open":true}`); err != nil {
		t.Errorf("unknown device error = %v, want nil", err)
	}
}

func TestHandleStatus_InvalidPayload(t *testing.T) {
	f := newFixture(t)

	for _, payload := range []string{`not json`, `[1,2]`, `null`, `"on"`} {
		err := f.transport.deliver(t, "home/living_room/light1/status", payload)
		if !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("payload %q error = %v, want ErrInvalidPayload", payload, err)
		}
	}
	if len(f.states.patches) != 0 {
		t.Errorf("patches applied for invalid payloads: %v", f.states.patches)
	}
}

func TestHandlePower(t *testing.T) {
	f := newFixture(t)

	err := f.transport.deliver(t, "home/living_room/power",
		`{"light1": 12.5, "fan1": 40, "total": 52.5, "voltage": 231.2, "current": 0.23, "label": "x"}`)
	if err != nil {
		t.Fatalf("deliver() error = %v", err)
	}

	if len(f.recorder.power) != 2 {
		t.Fatalf("recorded %d readings, want 2: %+v", len(f.recorder.power), f.recorder.power)
	}
	fan, light := f.recorder.power[0], f.recorder.power[1]
	if fan.DeviceID != "living_room_fan1" || fan.PowerWatts != 40 {
		t.Errorf("first reading = %+v, want living_room_fan1 40W", fan)
	}
	if light.DeviceID != "living_room_light1" || light.PowerWatts != 12.5 {
		t.Errorf("second reading = %+v, want living_room_light1 12.5W", light)
	}
	for _, r := range f.recorder.power {
		if r.Voltage == nil || *r.Voltage != 231.2 || r.CurrentAmps == nil || *r.CurrentAmps != 0.23 {
			t.Errorf("reading %s voltage/current = %v/%v", r.DeviceID, r.Voltage, r.CurrentAmps)
		}
	}

	events := f.hub.all()
	if len(events) != 1 || events[0].eventType != EventPowerUpdate {
		t.Fatalf("events = %+v, want one power_update", events)
	}
	if update := events[0].data.(PowerUpdate); update.RoomID != "living_room" || len(update.Readings) != 2 {
		t.Errorf("power_update = %+v", update)
	}
}

func TestHandlePower_OnlyTotals(t *testing.T) {
	f := newFixture(t)

	if err := f.transport.deliver(t, "home/living_room/power", `{"total": 10, "voltage": 230}`); err != nil {
		t.Fatalf("deliver() error = %v", err)
	}
	if len(f.recorder.power) != 0 || len(f.hub.all()) != 0 {
		t.Errorf("recorded %v, events %v; want nothing", f.recorder.power, f.hub.all())
	}
}

func TestHandleEnvironment(t *testing.T) {
	f := newFixture(t)

	if err := f.transport.deliver(t, "home/bedroom/environment", `{"temperature": 21.5, "humidity": 44}`); err != nil {
		t.Fatalf("deliver() error = %v", err)
	}
	if len(f.recorder.env) != 1 {
		t.Fatalf("recorded %d environment readings, want 1", len(f.recorder.env))
	}
	got := f.recorder.env[0]
	if got.RoomID != "bedroom" || *got.Temperature != 21.5 || *got.Humidity != 44 {
		t.Errorf("reading = %+v", got)
	}
	if events := f.hub.all(); len(events) != 1 || events[0].eventType != EventEnvironmentUpdate {
		t.Errorf("events = %+v, want one environment_update", events)
	}

	if err := f.transport.deliver(t, "home/bedroom/environment", `{"pressure": 1013}`); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("payload without readings error = %v, want ErrInvalidPayload", err)
	}
}

func TestHandleEnvironment_RecorderError(t *testing.T) {
	f := newFixture(t)
	f.recorder.err = errors.New("disk full")

	if err := f.transport.deliver(t, "home/bedroom/environment", `{"temperature": 21.5}`); err == nil {
		t.Error("deliver() error = nil, want recorder error")
	}
	if len(f.hub.all()) != 0 {
		t.Error("environment_update broadcast after a failed write")
	}
}

func TestPublishCommand(t *testing.T) {
	f := newFixture(t)
	f.bridge.now = func() time.Time { return time.Date(2026, 3, 1, 7, 30, 0, 0, time.UTC) }

	if err := f.bridge.PublishCommand(context.Background(), "home/living_room/light1", device.State{"on": true}); err != nil {
		t.Fatalf("PublishCommand() error = %v", err)
	}

	if len(f.transport.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(f.transport.published))
	}
	msg := f.transport.published[0]
	if msg.topic != "home/living_room/light1/command" || msg.qos != 1 || msg.retained {
		t.Errorf("published to %s qos=%d retained=%v", msg.topic, msg.qos, msg.retained)
	}

	var body map[string]any
	if err := json.Unmarshal(msg.payload, &body); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	want := map[string]any{"on": true, "timestamp": "2026-03-01T07:30:00Z"}
	if !reflect.DeepEqual(body, want) {
		t.Errorf("payload = %v, want %v", body, want)
	}
}

func TestPublishCommand_Disconnected(t *testing.T) {
	f := newFixture(t)
	f.transport.connected = false

	err := f.bridge.PublishCommand(context.Background(), "home/living_room/light1", device.State{"on": true})
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("PublishCommand() error = %v, want ErrNotConnected", err)
	}
	if f.bridge.IsConnected() {
		t.Error("IsConnected() = true")
	}
}

// End to end through the real reconciler and recorder.
func TestBridge_StoresThroughDomainServices(t *testing.T) {
	db := dbtest.Open(t)
	dbtest.Exec(t, db,
		`INSERT INTO rooms (id, name) VALUES ('living_room', 'Living Room')`,
		`INSERT INTO devices (id, room_id, name, type, control_type, mqtt_topic_base, state) VALUES ('living_room_light1', 'living_room', 'Light', 'light', 'relay', 'home/living_room/light1', '{"on":false,"brightness":30}')`,
	)
	devices := device.NewSQLiteRepository(db)
	hub := &fakeBroadcaster{}
	transport := newFakeTransport()

	b, err := New(Options{
		Transport:   transport,
		States:      device.NewReconciler(devices, hub),
		Recorder:    telemetry.NewRecorder(telemetry.NewSQLiteRepository(db), nil),
		Broadcaster: hub,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	if err := b.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := transport.deliver(t, "home/living_room/light1/status", `{"on":true}`); err != nil {
		t.Fatalf("status deliver() error = %v", err)
	}
	got, err := devices.GetByID(ctx, "living_room_light1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.State["on"] != true || got.State["brightness"] != 30.0 || !got.IsOnline || got.LastSeen == nil {
		t.Errorf("device after status = %+v", got)
	}

	if err := transport.deliver(t, "home/living_room/power", `{"light1": 9.5, "lamp9": 3}`); err != nil {
		t.Fatalf("power deliver() error = %v", err)
	}
	events := hub.all()
	if len(events) != 2 || events[0].eventType != device.EventDeviceUpdate || events[1].eventType != EventPowerUpdate {
		t.Fatalf("events = %+v", events)
	}
	if update := events[1].data.(PowerUpdate); len(update.Readings) != 1 || update.Readings[0].DeviceID != "living_room_light1" {
		t.Errorf("power_update readings = %+v, want only the registered device", update.Readings)
	}
}
