package location

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultIcon is used when a room is created without one.
const DefaultIcon = "home"

// Room represents a physical space in the home.
type Room struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Icon        string    `json:"icon"`
	SortOrder   int       `json:"sort_order"`
	DeviceCount int       `json:"device_count"`
	DevicesOn   int       `json:"devices_on"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Changes is a partial room update. Nil fields are left untouched.
type Changes struct {
	Name      *string `json:"name"`
	Icon      *string `json:"icon"`
	SortOrder *int    `json:"sort_order"`
}

// Empty reports whether c changes nothing.
func (c Changes) Empty() bool {
	return c.Name == nil && c.Icon == nil && c.SortOrder == nil
}

const (
	maxIDLength   = 64
	maxNameLength = 100
	maxIconLength = 50
)

var idRegex = regexp.MustCompile(`^[a-z0-9]+(?:[_-][a-z0-9]+)*$`)

// Validate checks a room before it is created.
func (r *Room) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRoom)
	}
	if len(r.ID) > maxIDLength || !idRegex.MatchString(r.ID) {
		return fmt.Errorf("%w: id %q must be lowercase letters, digits, '_' or '-'", ErrInvalidRoom, r.ID)
	}
	return validateFields(r.Name, r.Icon)
}

// Validate checks the fields a partial update sets.
func (c Changes) Validate() error {
	name, icon := "x", "x"
	if c.Name != nil {
		name = *c.Name
	}
	if c.Icon != nil {
		icon = *c.Icon
	}
	return validateFields(name, icon)
}

func validateFields(name, icon string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRoom)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidRoom, maxNameLength)
	}
	if len(icon) > maxIconLength {
		return fmt.Errorf("%w: icon exceeds %d characters", ErrInvalidRoom, maxIconLength)
	}
	return nil
}
