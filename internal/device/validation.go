package device

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxIDLength        = 64
	maxNameLength      = 100
	maxTopicBaseLength = 200
	maxConfigKeys      = 50
	maxGPIOPin         = 40
)

var idRegex = regexp.MustCompile(`^[a-z0-9]+(?:[_-][a-z0-9]+)*$`)

var (
	validTypes        map[Type]struct{}
	validControlTypes map[ControlType]struct{}
)

func init() {
	validTypes = make(map[Type]struct{}, len(AllTypes()))
	for _, t := range AllTypes() {
		validTypes[t] = struct{}{}
	}
	validControlTypes = make(map[ControlType]struct{}, len(AllControlTypes()))
	for _, c := range AllControlTypes() {
		validControlTypes[c] = struct{}{}
	}
}

// ValidateDevice checks a device profile before it is written.
// Returns an error describing the first failure found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}

	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	if len(d.ID) > maxIDLength || !idRegex.MatchString(d.ID) {
		return fmt.Errorf("%w: id %q must be lowercase letters, digits, '_' or '-'", ErrInvalidDevice, d.ID)
	}

	name := strings.TrimSpace(d.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDevice)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidDevice, maxNameLength)
	}

	if _, ok := validTypes[d.Type]; !ok {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidDevice, d.Type)
	}
	if _, ok := validControlTypes[d.ControlType]; !ok {
		return fmt.Errorf("%w: unknown control_type %q", ErrInvalidDevice, d.ControlType)
	}

	if d.GPIOPin != nil && (*d.GPIOPin < 0 || *d.GPIOPin > maxGPIOPin) {
		return fmt.Errorf("%w: gpio_pin %d out of range 0-%d", ErrInvalidDevice, *d.GPIOPin, maxGPIOPin)
	}

	if d.TopicBase != "" {
		if len(d.TopicBase) > maxTopicBaseLength {
			return fmt.Errorf("%w: mqtt_topic_base exceeds %d characters", ErrInvalidDevice, maxTopicBaseLength)
		}
		if strings.ContainsAny(d.TopicBase, "+#") {
			return fmt.Errorf("%w: mqtt_topic_base must not contain wildcards", ErrInvalidDevice)
		}
	}

	if len(d.Config) > maxConfigKeys {
		return fmt.Errorf("%w: config has too many keys (%d, max %d)", ErrInvalidDevice, len(d.Config), maxConfigKeys)
	}

	return nil
}
