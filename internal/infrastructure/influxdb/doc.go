// Package influxdb mirrors HomeCore telemetry into InfluxDB v2.
//
// SQLite stays the system of record for power and environment logs; this
// package is an optional long-term store for dashboards. Writes are
// non-blocking and batched according to influxdb.batch_size and
// influxdb.flush_interval, and asynchronous failures are delivered to the
// SetOnError callback.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without the mirror
//	}
//	defer client.Close()
//
//	client.WritePower("living_light1", "living", 12.5, nil, nil, time.Now())
package influxdb
