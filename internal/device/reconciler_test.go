package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type recordedEvent struct {
	eventType string
	data      any
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeBroadcaster) Broadcast(eventType string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{eventType, data})
}

func (f *fakeBroadcaster) all() []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedEvent(nil), f.events...)
}

func setupReconciler(t *testing.T) (*Reconciler, *SQLiteRepository, *fakeBroadcaster) {
	t.Helper()
	repo := NewSQLiteRepository(setupTestDB(t))
	if err := repo.Create(context.Background(), testDevice("living_room_light1", "living_room", TypeLight)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	hub := &fakeBroadcaster{}
	return NewReconciler(repo, hub), repo, hub
}

func TestReconciler_ApplyPatch(t *testing.T) {
	r, _, hub := setupReconciler(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	if _, err := r.ApplyPatch(ctx, "living_room_light1", State{"on": true, "brightness": 40.0}); err != nil {
		t.Fatalf("ApplyPatch() error = %v", err)
	}
	got, err := r.ApplyPatch(ctx, "living_room_light1", State{"brightness": 80.0})
	if err != nil {
		t.Fatalf("ApplyPatch() error = %v", err)
	}

	if got.State["on"] != true || got.State["brightness"] != 80.0 {
		t.Errorf("State = %v, want on=true brightness=80", got.State)
	}
	if !got.IsOnline {
		t.Error("IsOnline = false after ApplyPatch")
	}
	if got.LastSeen == nil || !got.LastSeen.Equal(now) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, now)
	}

	events := hub.all()
	if len(events) != 2 {
		t.Fatalf("broadcast %d events, want 2", len(events))
	}
	if events[1].eventType != EventDeviceUpdate {
		t.Errorf("event type = %q, want %q", events[1].eventType, EventDeviceUpdate)
	}
	if d, ok := events[1].data.(*Device); !ok || d.State["brightness"] != 80.0 {
		t.Errorf("event data = %#v, want updated device", events[1].data)
	}
}

func TestReconciler_ApplyPatch_Errors(t *testing.T) {
	r, _, hub := setupReconciler(t)
	ctx := context.Background()

	if _, err := r.ApplyPatch(ctx, "ghost", State{"on": true}); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("ApplyPatch(missing) error = %v, want ErrDeviceNotFound", err)
	}
	if _, err := r.ApplyPatch(ctx, "living_room_light1", nil); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ApplyPatch(nil) error = %v, want ErrInvalidState", err)
	}
	if n := len(hub.all()); n != 0 {
		t.Errorf("failed writes broadcast %d events, want 0", n)
	}
}

func TestReconciler_EmptyPatchRefreshesLastSeen(t *testing.T) {
	r, _, _ := setupReconciler(t)

	got, err := r.ApplyPatch(context.Background(), "living_room_light1", State{})
	if err != nil {
		t.Fatalf("ApplyPatch({}) error = %v", err)
	}
	if !got.IsOnline || got.LastSeen == nil {
		t.Errorf("empty patch online=%v last_seen=%v, want online and seen", got.IsOnline, got.LastSeen)
	}
}

func TestReconciler_UpdateAbort(t *testing.T) {
	r, repo, hub := setupReconciler(t)
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := r.Update(ctx, "living_room_light1", func(*Device) (State, error) {
		return State{"on": true}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v, want boom", err)
	}

	d, _ := repo.GetByID(ctx, "living_room_light1") //nolint:errcheck // device exists
	if len(d.State) != 0 || d.IsOnline {
		t.Errorf("aborted update changed device: state=%v online=%v", d.State, d.IsOnline)
	}
	if len(hub.all()) != 0 {
		t.Error("aborted update broadcast an event")
	}
}

func TestReconciler_ConcurrentPatchesKeepAllKeys(t *testing.T) {
	r, repo, _ := setupReconciler(t)
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := r.ApplyPatch(ctx, "living_room_light1", State{fmt.Sprintf("k%d", i): i}); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("ApplyPatch() error = %v", err)
	}

	d, err := repo.GetByID(ctx, "living_room_light1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if len(d.State) != writers {
		t.Errorf("state has %d keys after %d concurrent patches, want %d: %v", len(d.State), writers, writers, d.State)
	}
	if n := r.locks.size(); n != 0 {
		t.Errorf("lock table holds %d entries after all writers finished", n)
	}
}

func TestKeyedMutex_Serialises(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.lock("a")

	acquired := make(chan struct{})
	go func() {
		u := k.lock("a")
		close(acquired)
		u()
	}()

	otherDone := make(chan struct{})
	go func() {
		u := k.lock("b")
		u()
		close(otherDone)
	}()

	select {
	case <-otherDone:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}

	select {
	case <-acquired:
		t.Fatal("second lock on the same key acquired while held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}
}
