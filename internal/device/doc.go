// Package device owns the HomeCore device catalogue and its runtime state.
//
// A Device is a controllable or monitorable endpoint (light, fan, AC, TV,
// sensor) reached through an MQTT topic base. Its State is an open JSON
// object: field reports from hardware are merged into it key by key, never
// replaced wholesale.
//
// # Components
//
//	┌──────────────┐  ApplyPatch   ┌──────────────┐  SaveState  ┌──────────┐
//	│ MQTT bridge  │──────────────▶│  Reconciler  │────────────▶│  SQLite  │
//	└──────────────┘               │ (per-device  │             └──────────┘
//	┌──────────────┐  Command      │    lock)     │  Broadcast  ┌──────────┐
//	│ API / cron / │──▶Controller─▶│              │────────────▶│ fan-out  │
//	│   scenes     │   (publish)   └──────────────┘             └──────────┘
//	└──────────────┘
//
// The Reconciler is the only writer of device state. Every write for one
// device is serialised, so a hardware echo and a concurrent command can
// never lose each other's keys.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	reconciler := device.NewReconciler(repo, hub)
//	controller := device.NewController(reconciler, bridge)
//
//	dev, err := controller.Command(ctx, "living_light1", device.State{"on": true})
//	if errors.Is(err, device.ErrCommandFailed) {
//	    // broker rejected the publish; stored state is unchanged
//	}
package device
