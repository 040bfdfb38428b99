// Package influxdb provides InfluxDB connectivity for Solshade Core.
//
// It wraps the official influxdb-client-go v2 library with Solshade-specific
// patterns for connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Per-cycle shading outcomes (position, method, sun validity)
//   - Manual override activity
//   - Ad-hoc operational metrics via the generic write helpers
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "solshade",
//	    Bucket: "metrics",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Write a cycle outcome
//	client.WriteCycle(influxdb.CyclePoint{
//	    GroupID:   "living-south",
//	    CoverType: "vertical",
//	    Method:    "intermediate",
//	    Position:  62,
//	})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency telemetry data.
package influxdb
