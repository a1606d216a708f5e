package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/homecore/internal/device"
	"github.com/nerrad567/homecore/internal/infrastructure/mqtt"
	"github.com/nerrad567/homecore/internal/telemetry"
)

// Realtime event types emitted for telemetry.
const (
	EventPowerUpdate       = "power_update"
	EventEnvironmentUpdate = "environment_update"
)

const (
	subscribeQoS = 1
	commandQoS   = 1

	// handlerTimeout bounds the store work done for one inbound message.
	handlerTimeout = 5 * time.Second
)

// Transport is the broker connection. *mqtt.Client satisfies it.
type Transport interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// StateApplier merges a reported state patch into a device.
// *device.Reconciler satisfies it.
type StateApplier interface {
	ApplyPatch(ctx context.Context, id string, patch device.State) (*device.Device, error)
}

// Recorder stores telemetry readings. *telemetry.Recorder satisfies it.
type Recorder interface {
	RecordPower(ctx context.Context, roomID string, readings []telemetry.PowerReading) ([]telemetry.PowerReading, error)
	RecordEnvironment(ctx context.Context, reading telemetry.EnvironmentReading) (*telemetry.EnvironmentReading, error)
}

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Bridge.
type Options struct {
	Transport   Transport
	States      StateApplier
	Recorder    Recorder
	Broadcaster device.Broadcaster // may be nil
	Logger      Logger             // may be nil
}

// Bridge routes broker traffic to and from the domain services.
type Bridge struct {
	transport   Transport
	states      StateApplier
	recorder    Recorder
	broadcaster device.Broadcaster
	logger      Logger
	topics      mqtt.Topics
	now         func() time.Time
	baseCtx     context.Context
}

// PowerUpdate is the payload of a power_update event.
type PowerUpdate struct {
	RoomID   string                   `json:"room_id"`
	Readings []telemetry.PowerReading `json:"readings"`
}

// New creates a bridge. Transport, States and Recorder are required.
func New(opts Options) (*Bridge, error) {
	if opts.Transport == nil {
		return nil, errors.New("bridge: transport is required")
	}
	if opts.States == nil || opts.Recorder == nil {
		return nil, errors.New("bridge: state applier and recorder are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bridge{
		transport:   opts.Transport,
		states:      opts.States,
		recorder:    opts.Recorder,
		broadcaster: opts.Broadcaster,
		logger:      logger,
		now:         time.Now,
		baseCtx:     context.Background(),
	}, nil
}

// Start subscribes to the device status and room telemetry topics.
// Handlers derive their context from ctx.
func (b *Bridge) Start(ctx context.Context) error {
	b.baseCtx = ctx

	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{b.topics.AllDeviceStatus(), b.handleStatus},
		{b.topics.AllRoomPower(), b.handlePower},
		{b.topics.AllRoomEnvironment(), b.handleEnvironment},
	}
	for _, s := range subs {
		if err := b.transport.Subscribe(s.topic, subscribeQoS, s.handler); err != nil {
			return fmt.Errorf("subscribe to %s: %w", s.topic, err)
		}
		b.logger.Info("subscribed", "topic", s.topic)
	}
	return nil
}

// IsConnected reports whether the broker connection is live.
func (b *Bridge) IsConnected() bool {
	return b.transport.IsConnected()
}

// PublishCommand sends patch, stamped with the current time, to the
// device's command topic. It fails with mqtt.ErrNotConnected while the
// broker is unreachable.
func (b *Bridge) PublishCommand(_ context.Context, topicBase string, patch device.State) error {
	msg := make(map[string]any, len(patch)+1)
	for k, v := range patch {
		msg[k] = v
	}
	msg["timestamp"] = b.now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling command: %w", err)
	}

	topic := b.topics.DeviceCommand(topicBase)
	if err := b.transport.Publish(topic, payload, commandQoS, false); err != nil {
		return err
	}
	b.logger.Debug("command published", "topic", topic)
	return nil
}

func (b *Bridge) handleStatus(topic string, payload []byte) error {
	room, dev, ok := b.topics.ParseDeviceStatus(topic)
	if !ok {
		return nil
	}
	patch, err := decodeStatus(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(b.baseCtx, handlerTimeout)
	defer cancel()

	id := DeviceID(room, dev)
	if _, err := b.states.ApplyPatch(ctx, id, patch); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			b.logger.Debug("status for unknown device", "device_id", id)
			return nil
		}
		return fmt.Errorf("applying status for %s: %w", id, err)
	}
	return nil
}

func (b *Bridge) handlePower(topic string, payload []byte) error {
	room, ok := b.topics.ParseRoomTopic(topic, mqtt.SuffixPower)
	if !ok {
		return nil
	}
	readings, err := decodePower(room, payload)
	if err != nil {
		return err
	}
	if len(readings) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(b.baseCtx, handlerTimeout)
	defer cancel()

	stored, err := b.recorder.RecordPower(ctx, room, readings)
	if len(stored) > 0 {
		b.broadcast(EventPowerUpdate, PowerUpdate{RoomID: room, Readings: stored})
	}
	if err != nil {
		return fmt.Errorf("recording power for %s: %w", room, err)
	}
	return nil
}

func (b *Bridge) handleEnvironment(topic string, payload []byte) error {
	room, ok := b.topics.ParseRoomTopic(topic, mqtt.SuffixEnvironment)
	if !ok {
		return nil
	}
	reading, err := decodeEnvironment(room, payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(b.baseCtx, handlerTimeout)
	defer cancel()

	stored, err := b.recorder.RecordEnvironment(ctx, reading)
	if err != nil {
		return fmt.Errorf("recording environment for %s: %w", room, err)
	}
	b.broadcast(EventEnvironmentUpdate, stored)
	return nil
}

func (b *Bridge) broadcast(eventType string, data any) {
	if b.broadcaster != nil {
		b.broadcaster.Broadcast(eventType, data)
	}
}
