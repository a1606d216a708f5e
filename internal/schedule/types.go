package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/homecore/internal/device"
)

// Schedule runs Action against DeviceID whenever CronExpression matches.
// DeviceName, RoomID and RoomName are read-only joins.
type Schedule struct {
	ID             int64        `json:"id"`
	DeviceID       string       `json:"device_id"`
	DeviceName     *string      `json:"device_name"`
	RoomID         *string      `json:"room_id"`
	RoomName       *string      `json:"room_name"`
	Name           string       `json:"name"`
	CronExpression string       `json:"cron_expression"`
	Action         device.State `json:"action"`
	Enabled        bool         `json:"enabled"`
	LastRun        *time.Time   `json:"last_run"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Changes is a partial schedule update. Nil fields are left untouched.
type Changes struct {
	DeviceID       *string      `json:"device_id"`
	Name           *string      `json:"name"`
	CronExpression *string      `json:"cron_expression"`
	Action         device.State `json:"action"`
	Enabled        *bool        `json:"enabled"`
}

// Apply copies the non-nil fields of c onto s.
func (s *Schedule) Apply(c Changes) {
	if c.DeviceID != nil {
		s.DeviceID = *c.DeviceID
	}
	if c.Name != nil {
		s.Name = *c.Name
	}
	if c.CronExpression != nil {
		s.CronExpression = strings.TrimSpace(*c.CronExpression)
	}
	if c.Action != nil {
		s.Action = c.Action
	}
	if c.Enabled != nil {
		s.Enabled = *c.Enabled
	}
}

const maxNameLength = 100

// Validate checks a schedule before it is written. The cron expression is
// checked before anything else is considered valid.
func (s *Schedule) Validate() error {
	if strings.TrimSpace(s.DeviceID) == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidSchedule)
	}
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSchedule)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidSchedule, maxNameLength)
	}
	if err := ValidateCron(s.CronExpression); err != nil {
		return err
	}
	if len(s.Action) == 0 {
		return fmt.Errorf("%w: action is required", ErrInvalidSchedule)
	}
	if err := device.ValidateState(s.Action); err != nil {
		return fmt.Errorf("%w: action: %w", ErrInvalidSchedule, err)
	}
	return nil
}
