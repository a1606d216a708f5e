// Package api provides the HTTP REST API and WebSocket server for HomeCore.
//
// REST handlers under /api/v1 manage rooms, devices, schedules, scenes and
// power telemetry. The WebSocket endpoint streams device, power and
// environment updates and accepts device and scene commands.
//
//	hub := api.NewHub(cfg.WebSocket, logger)
//	server, err := api.New(api.Deps{Hub: hub, ...})
//	server.Start(ctx)
//	defer server.Close()
//
// Every command path goes through device.Controller, so REST, WebSocket,
// scenes and schedules share one publish-then-persist sequence.
package api
