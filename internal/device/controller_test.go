package device

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type publishedCommand struct {
	topicBase string
	patch     State
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []publishedCommand
	err  error
}

func (f *fakePublisher) PublishCommand(_ context.Context, topicBase string, patch State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, publishedCommand{topicBase, patch})
	return nil
}

func setupController(t *testing.T) (*Controller, *fakePublisher, *SQLiteRepository, *fakeBroadcaster) {
	t.Helper()
	r, repo, hub := setupReconciler(t)
	pub := &fakePublisher{}
	return NewController(r, pub), pub, repo, hub
}

func TestController_Command(t *testing.T) {
	c, pub, _, hub := setupController(t)

	got, err := c.Command(context.Background(), "living_room_light1", State{"on": true, "brightness": 60.0})
	if err != nil {
		t.Fatalf("Command() error = %v", err)
	}

	if len(pub.sent) != 1 {
		t.Fatalf("published %d commands, want 1", len(pub.sent))
	}
	if pub.sent[0].topicBase != "home/living_room/light1" {
		t.Errorf("topic base = %q", pub.sent[0].topicBase)
	}
	if got.State["on"] != true || got.State["brightness"] != 60.0 {
		t.Errorf("State = %v", got.State)
	}
	if len(hub.all()) != 1 {
		t.Errorf("broadcast %d events, want 1", len(hub.all()))
	}
}

func TestController_CommandPublishFailure(t *testing.T) {
	c, pub, repo, hub := setupController(t)
	ctx := context.Background()
	brokerDown := errors.New("mqtt: not connected")
	pub.err = brokerDown

	_, err := c.Command(ctx, "living_room_light1", State{"on": true})
	if !errors.Is(err, ErrCommandFailed) {
		t.Errorf("Command() error = %v, want ErrCommandFailed", err)
	}
	if !errors.Is(err, brokerDown) {
		t.Errorf("Command() error = %v, want wrapped publish error", err)
	}

	d, _ := repo.GetByID(ctx, "living_room_light1") //nolint:errcheck // device exists
	if len(d.State) != 0 {
		t.Errorf("state changed after failed publish: %v", d.State)
	}
	if len(hub.all()) != 0 {
		t.Error("failed command broadcast an event")
	}
}

func TestController_CommandValidation(t *testing.T) {
	c, pub, _, _ := setupController(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		id      string
		patch   State
		wantErr error
	}{
		{"empty patch", "living_room_light1", State{}, ErrInvalidState},
		{"nil patch", "living_room_light1", nil, ErrInvalidState},
		{"unknown device", "ghost", State{"on": true}, ErrDeviceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Command(ctx, tt.id, tt.patch); !errors.Is(err, tt.wantErr) {
				t.Errorf("Command() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if len(pub.sent) != 0 {
		t.Errorf("invalid commands published %d messages", len(pub.sent))
	}
}

func TestController_Toggle(t *testing.T) {
	c, pub, repo, _ := setupController(t)
	ctx := context.Background()

	// No "on" key yet: treated as off.
	got, err := c.Toggle(ctx, "living_room_light1")
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if got.State["on"] != true {
		t.Errorf("first Toggle() state = %v, want on=true", got.State)
	}

	got, err = c.Toggle(ctx, "living_room_light1")
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if got.State["on"] != false {
		t.Errorf("second Toggle() state = %v, want on=false", got.State)
	}

	// A non-boolean "on" also counts as off.
	if err := repo.SaveState(ctx, "living_room_light1", State{"on": "yes"}, got.UpdatedAt); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}
	got, err = c.Toggle(ctx, "living_room_light1")
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if got.State["on"] != true {
		t.Errorf("Toggle() from non-bool = %v, want on=true", got.State)
	}

	if len(pub.sent) != 3 {
		t.Errorf("published %d commands, want 3", len(pub.sent))
	}
	for _, cmd := range pub.sent {
		if len(cmd.patch) != 1 {
			t.Errorf("toggle patch = %v, want only the on key", cmd.patch)
		}
	}
}
