// Package automation stores scenes and runs them.
//
// A scene is a named, ordered list of device commands. Executing a scene
// walks its actions in order and funnels each one through the device
// controller, so scene commands publish and persist exactly like a REST or
// WebSocket command would.
//
//	Executor.Execute(sceneID)
//	     │
//	     ├── action {device_id: "living_room_light1", action: {on: true}}
//	     │        └── Controller.Command ──▶ broker + store
//	     │
//	     └── action {device_id: "*", action: {on: false}}
//	              └── one Controller.Command per device, in list order
//
// Failures are recorded per action and never stop the remaining actions.
package automation
