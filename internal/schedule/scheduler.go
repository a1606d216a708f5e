package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nerrad567/homecore/internal/device"
)

// DeviceCommander sends a state patch to a device. *device.Controller
// satisfies it.
type DeviceCommander interface {
	Command(ctx context.Context, id string, patch device.State) (*device.Device, error)
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

// Scheduler owns the cron triggers for every enabled schedule.
//
// The trigger set is immutable between reloads: Load builds a fresh cron
// instance from the database and swaps it in, stopping the previous one.
type Scheduler struct {
	repo      Repository
	commander DeviceCommander
	loc       *time.Location
	logger    Logger
	now       func() time.Time

	// reloadMu serializes Load from the read of enabled rows through the
	// swap, so the last reload to finish always installs the newest rows.
	reloadMu sync.Mutex

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[int64]cron.EntryID
	running bool
	jobCtx  context.Context
}

// NewScheduler creates a scheduler that evaluates expressions in loc.
// A nil loc means UTC and a nil logger discards output.
func NewScheduler(repo Repository, commander DeviceCommander, loc *time.Location, logger Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Scheduler{
		repo:      repo,
		commander: commander,
		loc:       loc,
		logger:    logger,
		now:       time.Now,
		entries:   make(map[int64]cron.EntryID),
		jobCtx:    context.Background(),
	}
}

// Start loads the enabled schedules and begins firing them. Jobs run with
// ctx, so cancelling it aborts in-flight commands.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.jobCtx = ctx
	s.running = true
	s.mu.Unlock()

	if err := s.Load(ctx); err != nil {
		return err
	}
	s.logger.Info("scheduler started", "timezone", s.loc.String())
	return nil
}

// Load rebuilds the trigger set from the enabled schedules. Schedules
// whose expression no longer parses are logged and skipped. Concurrent
// calls run one at a time.
func (s *Scheduler) Load(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	schedules, err := s.repo.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("loading schedules: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := cron.New(cron.WithLocation(s.loc), cron.WithParser(cronParser))
	entries := make(map[int64]cron.EntryID, len(schedules))

	for _, sched := range schedules {
		if err := ValidateCron(sched.CronExpression); err != nil {
			s.logger.Error("skipping schedule with invalid cron expression",
				"schedule_id", sched.ID, "cron", sched.CronExpression, "error", err)
			continue
		}
		id, err := next.AddFunc(sched.CronExpression, func() {
			s.Fire(s.currentJobCtx(), sched)
		})
		if err != nil {
			s.logger.Error("failed to register schedule", "schedule_id", sched.ID, "error", err)
			continue
		}
		entries[sched.ID] = id
		s.logger.Debug("schedule registered", "schedule_id", sched.ID, "name", sched.Name, "cron", sched.CronExpression)
	}

	prev := s.cron
	s.cron = next
	s.entries = entries
	if s.running {
		next.Start()
	}
	if prev != nil {
		prev.Stop()
	}

	s.logger.Info("schedules loaded", "enabled", len(schedules), "scheduled", len(entries))
	return nil
}

// Reload is Load under the name callers use after a mutation.
func (s *Scheduler) Reload(ctx context.Context) error {
	return s.Load(ctx)
}

// Fire runs one schedule now. Failures, including panics, are logged and
// never propagate to the cron loop.
func (s *Scheduler) Fire(ctx context.Context, sched Schedule) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("schedule panicked", "schedule_id", sched.ID, "panic", r)
		}
	}()

	s.logger.Info("executing schedule", "schedule_id", sched.ID, "name", sched.Name, "device_id", sched.DeviceID)

	if _, err := s.commander.Command(ctx, sched.DeviceID, sched.Action); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			s.logger.Error("device not found for schedule", "schedule_id", sched.ID, "device_id", sched.DeviceID)
			return
		}
		s.logger.Error("schedule execution failed", "schedule_id", sched.ID, "error", err)
		return
	}

	if err := s.repo.SetLastRun(ctx, sched.ID, s.now()); err != nil {
		s.logger.Warn("failed to record schedule last run", "schedule_id", sched.ID, "error", err)
	}
}

// Stop halts the triggers and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.running = false
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	s.logger.Info("scheduler stopped")
}

// ScheduledIDs returns the IDs of registered schedules in ascending order.
func (s *Scheduler) ScheduledIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// NextRun reports when a registered schedule fires next.
func (s *Scheduler) NextRun(id int64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, ok := s.entries[id]
	if !ok || s.cron == nil {
		return time.Time{}, false
	}
	entry := s.cron.Entry(entryID)
	if !entry.Valid() {
		return time.Time{}, false
	}
	if entry.Next.IsZero() {
		// Not started yet: compute from the schedule itself.
		return entry.Schedule.Next(s.now().In(s.loc)), true
	}
	return entry.Next, true
}

func (s *Scheduler) currentJobCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobCtx
}
