package mqtt

import (
	"fmt"
	"strings"
)

const (
	// TopicPrefixHome is the root of all device and room topics.
	TopicPrefixHome = "home"

	// TopicPrefixSystem carries HomeCore's own retained status.
	TopicPrefixSystem = "homecore/system"
)

// Topic suffixes in the home hierarchy.
const (
	SuffixStatus      = "status"
	SuffixCommand     = "command"
	SuffixPower       = "power"
	SuffixEnvironment = "environment"
)

// Topics builds and parses the broker topic hierarchy:
//
//	home/{room}/{device}/status   device -> core, state patch
//	home/{room}/power             device -> core, power readings
//	home/{room}/environment       device -> core, temperature/humidity
//	{topic_base}/command          core -> device, command patch
type Topics struct{}

// DeviceStatus returns the status topic a device reports on.
//
// Example: home/living/light1/status
func (Topics) DeviceStatus(room, device string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefixHome, room, device, SuffixStatus)
}

// DeviceCommand returns the command topic under a device's topic base.
//
// Example: home/living/light1/command
func (Topics) DeviceCommand(topicBase string) string {
	return strings.TrimSuffix(topicBase, "/") + "/" + SuffixCommand
}

// RoomPower returns the power telemetry topic for a room.
//
// Example: home/living/power
func (Topics) RoomPower(room string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixHome, room, SuffixPower)
}

// RoomEnvironment returns the environment telemetry topic for a room.
//
// Example: home/living/environment
func (Topics) RoomEnvironment(room string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixHome, room, SuffixEnvironment)
}

// SystemStatus returns the retained online/offline topic for this process.
//
// Example: homecore/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllDeviceStatus matches every device status topic: home/+/+/status
func (Topics) AllDeviceStatus() string {
	return fmt.Sprintf("%s/+/+/%s", TopicPrefixHome, SuffixStatus)
}

// AllRoomPower matches every room power topic: home/+/power
func (Topics) AllRoomPower() string {
	return fmt.Sprintf("%s/+/%s", TopicPrefixHome, SuffixPower)
}

// AllRoomEnvironment matches every room environment topic: home/+/environment
func (Topics) AllRoomEnvironment() string {
	return fmt.Sprintf("%s/+/%s", TopicPrefixHome, SuffixEnvironment)
}

// ParseDeviceStatus splits home/{room}/{device}/status. Any other shape
// returns ok=false.
func (Topics) ParseDeviceStatus(topic string) (room, device string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefixHome || parts[3] != SuffixStatus {
		return "", "", false
	}
	if parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// ParseRoomTopic splits home/{room}/{suffix} for the given suffix.
func (Topics) ParseRoomTopic(topic, suffix string) (room string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicPrefixHome || parts[2] != suffix || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
