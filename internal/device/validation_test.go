package device

import (
	"errors"
	"strings"
	"testing"
)

func validDevice() *Device {
	room := "living_room"
	pin := 18
	return &Device{
		ID:          "living_room_light1",
		RoomID:      &room,
		Name:        "Ceiling Light",
		Type:        TypeLight,
		ControlType: ControlRelay,
		GPIOPin:     &pin,
	}
}

func TestValidateDevice(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *Device)
		wantErr bool
	}{
		{"valid", func(*Device) {}, false},
		{"no room", func(d *Device) { d.RoomID = nil }, false},
		{"dash id", func(d *Device) { d.ID = "ac-1" }, false},
		{"missing id", func(d *Device) { d.ID = "" }, true},
		{"uppercase id", func(d *Device) { d.ID = "Living_Light" }, true},
		{"id with space", func(d *Device) { d.ID = "living light" }, true},
		{"long id", func(d *Device) { d.ID = strings.Repeat("a", maxIDLength+1) }, true},
		{"blank name", func(d *Device) { d.Name = "   " }, true},
		{"long name", func(d *Device) { d.Name = strings.Repeat("n", maxNameLength+1) }, true},
		{"unknown type", func(d *Device) { d.Type = "toaster" }, true},
		{"unknown control type", func(d *Device) { d.ControlType = "zigbee" }, true},
		{"negative pin", func(d *Device) { p := -1; d.GPIOPin = &p }, true},
		{"pin out of range", func(d *Device) { p := maxGPIOPin + 1; d.GPIOPin = &p }, true},
		{"wildcard topic", func(d *Device) { d.TopicBase = "home/+/light" }, true},
		{"custom topic", func(d *Device) { d.TopicBase = "home/garage/door" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDevice()
			tt.mutate(d)
			err := ValidateDevice(d)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateDevice() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidDevice) {
				t.Errorf("ValidateDevice() error = %v, want ErrInvalidDevice", err)
			}
		})
	}
}

func TestValidateDevice_Nil(t *testing.T) {
	if err := ValidateDevice(nil); !errors.Is(err, ErrInvalidDevice) {
		t.Errorf("ValidateDevice(nil) error = %v, want ErrInvalidDevice", err)
	}
}

func TestDefaultTopicBase(t *testing.T) {
	room := "living_room"
	empty := ""
	tests := []struct {
		name   string
		roomID *string
		id     string
		want   string
	}{
		{"strips room prefix", &room, "living_room_light1", "home/living_room/light1"},
		{"id without prefix", &room, "fan", "home/living_room/fan"},
		{"no room", nil, "porch_light", "home/porch_light"},
		{"empty room", &empty, "porch_light", "home/porch_light"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultTopicBase(tt.roomID, tt.id); got != tt.want {
				t.Errorf("DefaultTopicBase() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeviceApply(t *testing.T) {
	d := validDevice()
	name := "Wall Light"
	unassign := ""
	online := true

	d.Apply(Changes{Name: &name, RoomID: &unassign, IsOnline: &online, Config: Config{"dim": true}})

	if d.Name != name {
		t.Errorf("Name = %q, want %q", d.Name, name)
	}
	if d.RoomID != nil {
		t.Errorf("RoomID = %v, want nil", *d.RoomID)
	}
	if !d.IsOnline {
		t.Error("IsOnline = false, want true")
	}
	if d.Config["dim"] != true {
		t.Errorf("Config = %v", d.Config)
	}
	if d.Type != TypeLight {
		t.Errorf("Type changed to %q", d.Type)
	}
}

func TestDeviceDeepCopy(t *testing.T) {
	d := validDevice()
	d.State = State{"ir": map[string]any{"mode": "cool"}}

	cpy := d.DeepCopy()
	*cpy.RoomID = "kitchen"
	cpy.State["ir"].(map[string]any)["mode"] = "heat"

	if *d.RoomID != "living_room" {
		t.Error("DeepCopy() shares RoomID")
	}
	if d.State["ir"].(map[string]any)["mode"] != "cool" {
		t.Error("DeepCopy() shares nested state")
	}
	if (*Device)(nil).DeepCopy() != nil {
		t.Error("nil.DeepCopy() != nil")
	}
}
