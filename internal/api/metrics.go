package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	MQTT          MQTTMetrics     `json:"mqtt"`
	Control       ControlMetrics  `json:"control"`
	Covers        CoverMetrics    `json:"covers"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// ControlMetrics contains shading controller statistics.
type ControlMetrics struct {
	Status          string `json:"status"`
	CyclesRun       uint64 `json:"cycles_run"`
	CommandsSent    uint64 `json:"commands_sent"`
	CommandFailures uint64 `json:"command_failures"`
	GroupsManaged   int    `json:"groups_managed"`
	DevicesManaged  int    `json:"devices_managed"`
	ManualOverrides int    `json:"manual_overrides"`
}

// CoverMetrics contains cover registry statistics.
type CoverMetrics struct {
	TotalGroups   int            `json:"total_groups"`
	EnabledGroups int            `json:"enabled_groups"`
	TotalDevices  int            `json:"total_devices"`
	ByType        map[string]int `json:"by_type"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	// Collect runtime stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	ctrl := s.controller.GetMetrics()

	// Build metrics response
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		MQTT: MQTTMetrics{
			Connected: ctrl.Connected,
		},
		Control: ControlMetrics{
			Status:          ctrl.Status,
			CyclesRun:       ctrl.CyclesRun,
			CommandsSent:    ctrl.CommandsSent,
			CommandFailures: ctrl.CommandFailures,
			GroupsManaged:   ctrl.GroupsManaged,
			DevicesManaged:  ctrl.DevicesManaged,
			ManualOverrides: ctrl.ManualOverrides,
		},
	}

	// Hub exists only between Start and Close
	if s.hub != nil {
		metrics.WebSocket = WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		}
	}

	// Cover registry stats
	regStats := s.registry.GetStats()
	metrics.Covers = CoverMetrics{
		TotalGroups:   regStats.TotalGroups,
		EnabledGroups: regStats.EnabledGroups,
		TotalDevices:  regStats.TotalDevices,
		ByType:        make(map[string]int),
	}
	for typ, count := range regStats.ByType {
		metrics.Covers.ByType[string(typ)] = count
	}

	// Database stats (if available)
	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
