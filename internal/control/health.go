package control

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/solshade-core/internal/infrastructure/mqtt"
)

// HealthReporter publishes periodic controller health to MQTT, retained
// so late subscribers see the latest status. GetLWTTopic and
// GetLWTPayload expose the matching will message for brokers configured
// to flip the topic to "offline" on an ungraceful disconnect.
type HealthReporter struct {
	instanceID string
	version    string
	startTime  time.Time
	interval   time.Duration
	publisher  HealthPublisher

	// Counters updated by the control cycle
	stats   healthStats
	statsMu sync.RWMutex

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex
}

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

type healthStats struct {
	groups    int
	devices   int
	overrides int

	cycles    uint64
	commands  uint64
	failures  uint64
	dropped   uint64
	lastCycle time.Time
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// InstanceID identifies this controller in health messages.
	InstanceID string

	// Version is the controller software version.
	Version string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher HealthPublisher
}

// NewHealthReporter creates a new health reporter, ready to Start.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &HealthReporter{
		instanceID: cfg.InstanceID,
		version:    cfg.Version,
		startTime:  time.Now(),
		interval:   interval,
		publisher:  cfg.Publisher,
		done:       make(chan struct{}),
	}
}

// Start begins periodic health reporting. Call Stop to shut down.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop gracefully stops health reporting, publishing a final "stopping"
// status. Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		// Best-effort during shutdown, nothing we can do if it fails
		//nolint:errcheck
		h.publishStatus(HealthStopping, "")
	})
}

// SetCounts updates the managed group and device counts plus the number
// of active manual overrides. Called at the end of each control cycle.
func (h *HealthReporter) SetCounts(groups, devices, overrides int) {
	h.statsMu.Lock()
	h.stats.groups = groups
	h.stats.devices = devices
	h.stats.overrides = overrides
	h.statsMu.Unlock()
}

// RecordCycle notes a completed control cycle.
func (h *HealthReporter) RecordCycle(at time.Time) {
	h.statsMu.Lock()
	h.stats.cycles++
	h.stats.lastCycle = at
	h.statsMu.Unlock()
}

// RecordCommand notes a dispatched command, failed or not.
func (h *HealthReporter) RecordCommand(failed bool) {
	h.statsMu.Lock()
	h.stats.commands++
	if failed {
		h.stats.failures++
	}
	h.statsMu.Unlock()
}

// RecordDroppedEvent notes a state event lost to queue overflow.
func (h *HealthReporter) RecordDroppedEvent() {
	h.statsMu.Lock()
	h.stats.dropped++
	h.statsMu.Unlock()
}

// Counts returns the managed group, device and override counts from the
// last control cycle.
func (h *HealthReporter) Counts() (groups, devices, overrides int) {
	h.statsMu.RLock()
	defer h.statsMu.RUnlock()
	return h.stats.groups, h.stats.devices, h.stats.overrides
}

// Statistics returns a snapshot of the operational counters.
func (h *HealthReporter) Statistics() ControllerStatistics {
	h.statsMu.RLock()
	defer h.statsMu.RUnlock()
	return ControllerStatistics{
		CyclesRun:       h.stats.cycles,
		CommandsSent:    h.stats.commands,
		CommandFailures: h.stats.failures,
		EventsDropped:   h.stats.dropped,
	}
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status during initialization.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "controller starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// GetLWTPayload returns the Last Will and Testament message payload.
// This should be set as the MQTT will message during connection.
func (h *HealthReporter) GetLWTPayload() ([]byte, error) {
	return json.Marshal(NewLWTMessage(h.instanceID))
}

// GetLWTTopic returns the topic for the Last Will and Testament.
func (h *HealthReporter) GetLWTTopic() string {
	return mqtt.Topics{}.SystemHealth(h.instanceID)
}

// reportLoop runs the periodic health reporting.
func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	// Publish initial status
	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus evaluates the current controller status.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	return HealthHealthy, ""
}

// publishStatus publishes a health status message (QoS 1, retained).
func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	h.statsMu.RLock()
	stats := h.stats
	h.statsMu.RUnlock()

	msg := HealthMessage{
		Instance:        h.instanceID,
		Timestamp:       time.Now().UTC(),
		Status:          status,
		Version:         h.version,
		UptimeSeconds:   int64(time.Since(h.startTime).Seconds()),
		GroupsManaged:   stats.groups,
		DevicesManaged:  stats.devices,
		ManualOverrides: stats.overrides,
		Statistics: &ControllerStatistics{
			CyclesRun:       stats.cycles,
			CommandsSent:    stats.commands,
			CommandFailures: stats.failures,
			EventsDropped:   stats.dropped,
		},
		Reason: reason,
	}
	if !stats.lastCycle.IsZero() {
		last := stats.lastCycle
		msg.LastCycle = &last
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.GetLWTTopic(), payload, 1, true)
}

// logError logs an error if a logger is set.
func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
