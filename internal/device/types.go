package device

import (
	"strings"
	"time"
)

// Device is a controllable or monitorable endpoint.
//
// RoomName is populated by reads that join the rooms table and is never
// written back.
type Device struct {
	ID          string         `json:"id"`
	RoomID      *string        `json:"room_id"`
	RoomName    *string        `json:"room_name,omitempty"`
	Name        string         `json:"name"`
	Type        Type           `json:"type"`
	ControlType ControlType    `json:"control_type"`
	GPIOPin     *int           `json:"gpio_pin"`
	TopicBase   string         `json:"mqtt_topic_base"`
	IRCodes     map[string]any `json:"ir_codes"`
	Config      Config         `json:"config"`
	State       State          `json:"state"`
	IsOnline    bool           `json:"is_online"`
	LastSeen    *time.Time     `json:"last_seen"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Config holds device-specific settings (thresholds, IR profile names).
type Config map[string]any

// State is the last known device state, e.g. {"on": true, "brightness": 80}.
type State map[string]any

// Type classifies what a device is.
type Type string

const (
	TypeLight     Type = "light"
	TypeFan       Type = "fan"
	TypeAC        Type = "ac"
	TypeTV        Type = "tv"
	TypeAppliance Type = "appliance"
	TypeSensor    Type = "sensor"
	TypeSwitch    Type = "switch"
	TypeOther     Type = "other"
)

// AllTypes returns every recognised device type.
func AllTypes() []Type {
	return []Type{TypeLight, TypeFan, TypeAC, TypeTV, TypeAppliance, TypeSensor, TypeSwitch, TypeOther}
}

// ControlType describes how the controller node drives the device.
type ControlType string

const (
	ControlRelay  ControlType = "relay"
	ControlSensor ControlType = "sensor"
	ControlIR     ControlType = "ir"
	ControlDimmer ControlType = "dimmer"
)

// AllControlTypes returns every recognised control type.
func AllControlTypes() []ControlType {
	return []ControlType{ControlRelay, ControlSensor, ControlIR, ControlDimmer}
}

// DefaultTopicBase derives the MQTT topic base for a device that was
// created without one. Device IDs conventionally carry their room as a
// prefix ("living_light1"), which is stripped so the topic reads
// home/living/light1.
func DefaultTopicBase(roomID *string, id string) string {
	if roomID == nil || *roomID == "" {
		return "home/" + id
	}
	return "home/" + *roomID + "/" + strings.TrimPrefix(id, *roomID+"_")
}

// IsOn reports whether state carries a boolean on=true. Any other value,
// including a missing key, counts as off.
func (s State) IsOn() bool {
	on, ok := s["on"].(bool)
	return ok && on
}

// Changes is a partial update of a device's profile. Nil fields are left
// untouched. An empty RoomID unassigns the device.
type Changes struct {
	Name        *string        `json:"name"`
	RoomID      *string        `json:"room_id"`
	Type        *Type          `json:"type"`
	ControlType *ControlType   `json:"control_type"`
	GPIOPin     *int           `json:"gpio_pin"`
	TopicBase   *string        `json:"mqtt_topic_base"`
	IRCodes     map[string]any `json:"ir_codes"`
	Config      Config         `json:"config"`
	IsOnline    *bool          `json:"is_online"`
}

// Apply copies the non-nil fields of c onto d.
func (d *Device) Apply(c Changes) {
	if c.Name != nil {
		d.Name = *c.Name
	}
	if c.RoomID != nil {
		if *c.RoomID == "" {
			d.RoomID = nil
		} else {
			room := *c.RoomID
			d.RoomID = &room
		}
		d.RoomName = nil
	}
	if c.Type != nil {
		d.Type = *c.Type
	}
	if c.ControlType != nil {
		d.ControlType = *c.ControlType
	}
	if c.GPIOPin != nil {
		pin := *c.GPIOPin
		d.GPIOPin = &pin
	}
	if c.TopicBase != nil {
		d.TopicBase = *c.TopicBase
	}
	if c.IRCodes != nil {
		d.IRCodes = deepCopyMap(c.IRCodes)
	}
	if c.Config != nil {
		d.Config = deepCopyMap(c.Config)
	}
	if c.IsOnline != nil {
		d.IsOnline = *c.IsOnline
	}
}

// DeepCopy returns an independent copy of the device.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	cpy.IRCodes = deepCopyMap(d.IRCodes)
	cpy.Config = deepCopyMap(d.Config)
	cpy.State = deepCopyMap(d.State)

	if d.RoomID != nil {
		v := *d.RoomID
		cpy.RoomID = &v
	}
	if d.RoomName != nil {
		v := *d.RoomName
		cpy.RoomName = &v
	}
	if d.GPIOPin != nil {
		v := *d.GPIOPin
		cpy.GPIOPin = &v
	}
	if d.LastSeen != nil {
		v := *d.LastSeen
		cpy.LastSeen = &v
	}
	return &cpy
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case State:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}
