package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkPoint struct {
	kind  string
	id    string
	room  string
	watts float64
}

type fakeSink struct {
	mu     sync.Mutex
	points []sinkPoint
}

func (f *fakeSink) WritePower(deviceID, roomID string, watts float64, _, _ *float64, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, sinkPoint{kind: "power", id: deviceID, room: roomID, watts: watts})
}

func (f *fakeSink) WriteEnvironment(roomID string, _, _ *float64, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, sinkPoint{kind: "environment", room: roomID})
}

func TestRecorder_RecordPower(t *testing.T) {
	repo, _ := newTestRepo(t)
	sink := &fakeSink{}
	rec := NewRecorder(repo, sink)
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return now }

	stored, err := rec.RecordPower(context.Background(), "living_room", []PowerReading{
		{DeviceID: "living_room_light1", PowerWatts: 12, Voltage: f64(230)},
		{DeviceID: "living_room_heater", PowerWatts: 900},
	})
	require.NoError(t, err)
	require.Len(t, stored, 1, "unknown device is skipped")
	assert.Equal(t, "living_room_light1", stored[0].DeviceID)
	assert.True(t, stored[0].Timestamp.Equal(now))

	// Only the stored reading reaches the mirror.
	assert.Equal(t, []sinkPoint{{kind: "power", id: "living_room_light1", room: "living_room", watts: 12}}, sink.points)

	latest, err := repo.LatestPower(context.Background(), "living_room_light1")
	require.NoError(t, err)
	assert.Equal(t, 12.0, latest.PowerWatts)
}

func TestRecorder_RecordEnvironment(t *testing.T) {
	repo, _ := newTestRepo(t)
	sink := &fakeSink{}
	rec := NewRecorder(repo, sink)

	got, err := rec.RecordEnvironment(context.Background(), EnvironmentReading{RoomID: "kitchen", Temperature: f64(27)})
	require.NoError(t, err)
	assert.NotZero(t, got.ID)
	assert.False(t, got.Timestamp.IsZero())
	assert.Equal(t, []sinkPoint{{kind: "environment", room: "kitchen"}}, sink.points)
}

func TestRecorder_NilSink(t *testing.T) {
	repo, _ := newTestRepo(t)
	rec := NewRecorder(repo, nil)

	_, err := rec.RecordPower(context.Background(), "kitchen", []PowerReading{{DeviceID: "kitchen_kettle", PowerWatts: 1800}})
	assert.NoError(t, err)
}
