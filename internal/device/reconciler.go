package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// EventDeviceUpdate is the fan-out event emitted after every state write.
const EventDeviceUpdate = "device_update"

// Broadcaster delivers events to connected realtime clients.
type Broadcaster interface {
	Broadcast(eventType string, data any)
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

// PatchFunc computes the patch to merge into a device's state. It runs
// while the device's lock is held and sees the freshly loaded device.
// Returning an error aborts the write.
type PatchFunc func(current *Device) (State, error)

// Reconciler is the single writer of device state. Writes for the same
// device are serialised; writes for different devices run in parallel.
type Reconciler struct {
	repo        Repository
	broadcaster Broadcaster
	logger      Logger
	locks       *keyedMutex
	now         func() time.Time
}

// NewReconciler creates a reconciler. broadcaster may be nil.
func NewReconciler(repo Repository, broadcaster Broadcaster) *Reconciler {
	return &Reconciler{
		repo:        repo,
		broadcaster: broadcaster,
		logger:      noopLogger{},
		locks:       newKeyedMutex(),
		now:         time.Now,
	}
}

// SetLogger sets the logger for the reconciler.
func (r *Reconciler) SetLogger(logger Logger) {
	r.logger = logger
}

// ApplyPatch merges patch into the stored state of device id, marks it
// online and seen now, and broadcasts the result.
func (r *Reconciler) ApplyPatch(ctx context.Context, id string, patch State) (*Device, error) {
	return r.Update(ctx, id, func(*Device) (State, error) {
		return patch, nil
	})
}

// Update runs fn under the device's lock and merges the patch it returns.
func (r *Reconciler) Update(ctx context.Context, id string, fn PatchFunc) (*Device, error) {
	unlock := r.locks.lock(id)
	defer unlock()

	current, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	patch, err := fn(current.DeepCopy())
	if err != nil {
		return nil, err
	}
	if err := ValidateState(patch); err != nil {
		return nil, err
	}

	merged := MergeState(current.State, patch)
	if err := r.repo.SaveState(ctx, id, merged, r.now()); err != nil {
		return nil, fmt.Errorf("saving state for %s: %w", id, err)
	}

	updated, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reloading device %s: %w", id, err)
	}

	r.logger.Debug("device state updated", "device_id", id, "keys", len(patch))

	if r.broadcaster != nil {
		r.broadcaster.Broadcast(EventDeviceUpdate, updated)
	}
	return updated, nil
}

// keyedMutex hands out one mutex per key and forgets it once no caller
// holds or waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
