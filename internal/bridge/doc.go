// Package bridge connects the MQTT broker to the device store.
//
// Inbound, it decodes three topic families published by the ESP32 nodes:
//
//	home/{room}/{device}/status   state patch for device "{room}_{device}"
//	home/{room}/power             {"light1": 12.5, "voltage": 230, ...}
//	home/{room}/environment       {"temperature": 22.1, "humidity": 48}
//
// Status patches go through the device reconciler, readings through the
// telemetry recorder, and both are fanned out to realtime clients.
//
// Outbound, PublishCommand sends a command patch to {topic_base}/command.
// The bridge satisfies device.CommandPublisher.
package bridge
