package automation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nerrad567/homecore/internal/device"
)

// DefaultIcon is used when a scene is created without one.
const DefaultIcon = "play"

// AllDevices as an action's device ID targets every known device.
const AllDevices = "*"

// Scene is a named collection of device commands.
type Scene struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Icon      string        `json:"icon"`
	Actions   []SceneAction `json:"actions"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// SceneAction is one step of a scene.
type SceneAction struct {
	DeviceID string       `json:"device_id"`
	Action   device.State `json:"action"`
}

// Changes is a partial scene update. Nil fields are left untouched.
type Changes struct {
	Name    *string        `json:"name"`
	Icon    *string        `json:"icon"`
	Actions *[]SceneAction `json:"actions"`
}

// Empty reports whether c changes nothing.
func (c Changes) Empty() bool {
	return c.Name == nil && c.Icon == nil && c.Actions == nil
}

// Result statuses of a single scene action.
const (
	StatusSuccess  = "success"
	StatusNotFound = "not_found"
	StatusFailed   = "failed"
)

// ActionResult is the outcome of one device command within a scene.
type ActionResult struct {
	DeviceID string `json:"device_id"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// Execution is the outcome of running a scene.
type Execution struct {
	SceneID    string         `json:"scene_id"`
	SceneName  string         `json:"scene_name"`
	Results    []ActionResult `json:"results"`
	StartedAt  time.Time      `json:"started_at"`
	DurationMS int64          `json:"duration_ms"`
}

// Counts returns the number of results per status.
func (e *Execution) Counts() map[string]int {
	counts := make(map[string]int, 3)
	for _, r := range e.Results {
		counts[r.Status]++
	}
	return counts
}

const (
	maxIDLength   = 64
	maxNameLength = 100
	maxIconLength = 50
	maxActions    = 100
)

var idRegex = regexp.MustCompile(`^[a-z0-9]+(?:[_-][a-z0-9]+)*$`)

// Validate checks a scene before it is stored.
func (s *Scene) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidScene)
	}
	if len(s.ID) > maxIDLength || !idRegex.MatchString(s.ID) {
		return fmt.Errorf("%w: id %q must be lowercase letters, digits, '_' or '-'", ErrInvalidScene, s.ID)
	}
	if err := validateName(s.Name); err != nil {
		return err
	}
	if len(s.Icon) > maxIconLength {
		return fmt.Errorf("%w: icon exceeds %d characters", ErrInvalidScene, maxIconLength)
	}
	return ValidateActions(s.Actions)
}

// Validate checks the fields a partial update sets.
func (c Changes) Validate() error {
	if c.Name != nil {
		if err := validateName(*c.Name); err != nil {
			return err
		}
	}
	if c.Icon != nil && len(*c.Icon) > maxIconLength {
		return fmt.Errorf("%w: icon exceeds %d characters", ErrInvalidScene, maxIconLength)
	}
	if c.Actions != nil {
		return ValidateActions(*c.Actions)
	}
	return nil
}

// ValidateActions requires an actions array where every entry names a
// device (or the wildcard) and carries a non-empty patch. An empty array
// is allowed.
func ValidateActions(actions []SceneAction) error {
	if actions == nil {
		return fmt.Errorf("%w: actions array is required", ErrInvalidScene)
	}
	if len(actions) > maxActions {
		return fmt.Errorf("%w: more than %d actions", ErrInvalidScene, maxActions)
	}
	for i, a := range actions {
		if strings.TrimSpace(a.DeviceID) == "" {
			return fmt.Errorf("%w: action %d: device_id is required", ErrInvalidScene, i)
		}
		if len(a.Action) == 0 {
			return fmt.Errorf("%w: action %d: action is required", ErrInvalidScene, i)
		}
		if err := device.ValidateState(a.Action); err != nil {
			return fmt.Errorf("%w: action %d: %w", ErrInvalidScene, i, err)
		}
	}
	return nil
}

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidScene)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidScene, maxNameLength)
	}
	return nil
}
