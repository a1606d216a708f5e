package automation

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/homecore/internal/device"
)

// maxSceneExecutionTime bounds a single scene run.
const maxSceneExecutionTime = 60 * time.Second

// DeviceCommander sends a state patch to a device. *device.Controller
// satisfies it.
type DeviceCommander interface {
	Command(ctx context.Context, id string, patch device.State) (*device.Device, error)
}

// DeviceLister resolves scene targets. device.Repository satisfies it.
type DeviceLister interface {
	GetByID(ctx context.Context, id string) (*device.Device, error)
	List(ctx context.Context) ([]device.Device, error)
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

// Executor runs scenes.
type Executor struct {
	scenes    Repository
	devices   DeviceLister
	commander DeviceCommander
	logger    Logger
	now       func() time.Time
}

// NewExecutor creates a scene executor. A nil logger discards output.
func NewExecutor(scenes Repository, devices DeviceLister, commander DeviceCommander, logger Logger) *Executor {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Executor{
		scenes:    scenes,
		devices:   devices,
		commander: commander,
		logger:    logger,
		now:       time.Now,
	}
}

// Execute runs every action of the scene in order. Individual failures are
// recorded in the result list, including a wildcard step whose device
// listing fails; only a missing scene returns an error.
func (e *Executor) Execute(ctx context.Context, sceneID string) (*Execution, error) {
	ctx, cancel := context.WithTimeout(ctx, maxSceneExecutionTime)
	defer cancel()

	scene, err := e.scenes.GetByID(ctx, sceneID)
	if err != nil {
		return nil, err
	}

	exec := &Execution{
		SceneID:   scene.ID,
		SceneName: scene.Name,
		Results:   []ActionResult{},
		StartedAt: e.now().UTC(),
	}

	for _, action := range scene.Actions {
		if action.DeviceID == AllDevices {
			devices, err := e.devices.List(ctx)
			if err != nil {
				e.logger.Warn("scene wildcard expansion failed", "scene_id", scene.ID, "error", err)
				exec.Results = append(exec.Results, failed(AllDevices, err))
				continue
			}
			for _, d := range devices {
				exec.Results = append(exec.Results, e.command(ctx, d.ID, action.Action))
			}
			continue
		}

		if _, err := e.devices.GetByID(ctx, action.DeviceID); err != nil {
			if errors.Is(err, device.ErrDeviceNotFound) {
				exec.Results = append(exec.Results, ActionResult{DeviceID: action.DeviceID, Status: StatusNotFound})
				continue
			}
			exec.Results = append(exec.Results, failed(action.DeviceID, err))
			continue
		}
		exec.Results = append(exec.Results, e.command(ctx, action.DeviceID, action.Action))
	}

	exec.DurationMS = e.now().UTC().Sub(exec.StartedAt).Milliseconds()
	counts := exec.Counts()
	e.logger.Info("scene executed",
		"scene_id", scene.ID,
		"actions", len(exec.Results),
		"succeeded", counts[StatusSuccess],
		"failed", counts[StatusFailed],
		"not_found", counts[StatusNotFound],
		"duration_ms", exec.DurationMS,
	)
	return exec, nil
}

func (e *Executor) command(ctx context.Context, id string, patch device.State) ActionResult {
	if _, err := e.commander.Command(ctx, id, patch); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			// Deleted between listing and command.
			return ActionResult{DeviceID: id, Status: StatusNotFound}
		}
		e.logger.Warn("scene action failed", "device_id", id, "error", err)
		return failed(id, err)
	}
	return ActionResult{DeviceID: id, Status: StatusSuccess}
}

func failed(id string, err error) ActionResult {
	return ActionResult{DeviceID: id, Status: StatusFailed, Error: err.Error()}
}
