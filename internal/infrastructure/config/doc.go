// Package config loads and validates HomeCore configuration.
//
// Values come from three layers, each overriding the previous one:
//   - hardcoded defaults
//   - a YAML file
//   - HOMECORE_* environment variables
//
// Secrets (MQTT password, InfluxDB token, JWT secret) should be supplied
// through the environment rather than committed to the YAML file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	loc := cfg.SchedulerLocation()
package config
