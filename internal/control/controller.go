package control

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/solshade-core/internal/climate"
	"github.com/nerrad567/solshade-core/internal/cover"
	"github.com/nerrad567/solshade-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/solshade-core/internal/solar"
)

const (
	// defaultCycleInterval is the periodic recompute interval when the
	// configuration does not set one. State and sensor events trigger
	// extra cycles in between.
	defaultCycleInterval = time.Minute

	// eventQueueSize bounds the state events held between cycles. A full
	// queue drops the oldest information: the state store still carries
	// the latest values, only the per-event deviation check is skipped.
	eventQueueSize = 64

	commandQoS byte = 1
	resultQoS  byte = 1
)

// MQTTClient is the interface the controller needs from the MQTT layer.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// GroupSource supplies the enabled cover groups each cycle. Satisfied by
// *cover.Registry.
type GroupSource interface {
	ListEnabled(ctx context.Context) ([]cover.Group, error)
}

// CycleRecorder persists per-cycle results. Satisfied by the history
// store and the telemetry writer; both are optional.
type CycleRecorder interface {
	RecordCycle(ctx context.Context, result Result) error
}

// CommandAuditor records dispatched movement commands. Satisfied by the
// history store; optional.
type CommandAuditor interface {
	RecordCommand(ctx context.Context, groupID string, msg CommandMessage) error
}

// Site fixes the observer location and civil clock for all solar
// computation and dispatch windows.
type Site struct {
	Latitude  float64
	Longitude float64
	Timezone  *time.Location
}

// Validate checks the site is geographically plausible and has a clock.
func (s Site) Validate() error {
	if s.Timezone == nil {
		return fmt.Errorf("%w: timezone not set", ErrMissingLocation)
	}
	// An all-zero site is indistinguishable from an unconfigured one.
	if s.Latitude == 0 && s.Longitude == 0 {
		return fmt.Errorf("%w: latitude and longitude not set", ErrMissingLocation)
	}
	if s.Latitude < -90 || s.Latitude > 90 {
		return fmt.Errorf("%w: latitude %.4f out of range", ErrMissingLocation, s.Latitude)
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		return fmt.Errorf("%w: longitude %.4f out of range", ErrMissingLocation, s.Longitude)
	}
	return nil
}

// PendingCommand tracks one command in flight to a device. Awaiting stays
// true until the device reports reaching the commanded values; while set,
// state reports for the device are settling, not manual deviations.
type PendingCommand struct {
	Device    string
	CommandID string
	Command   Command
	IssuedAt  time.Time
	Awaiting  bool
}

// commandRecord is the last values this system sent to a device.
type commandRecord struct {
	Command  Command
	IssuedAt time.Time
}

// Controller runs the adaptive shading control loop: it watches cover and
// sensor state over MQTT, recomputes targets on a timer and on events,
// and dispatches movement commands. One goroutine owns the cycle; bursts
// of triggers coalesce into a single run.
type Controller struct {
	site     Site
	instance string
	interval time.Duration

	groups    GroupSource
	mqtt      MQTTClient
	sensors   *SensorStore
	states    *StateStore
	tracker   *Tracker
	health    *HealthReporter
	history   CycleRecorder  // May be nil (optional)
	telemetry CycleRecorder  // May be nil (optional)
	audit     CommandAuditor // May be nil (optional)

	// trigger coalesces cycle requests; events carries state changes to
	// the next cycle's deviation pass.
	trigger chan struct{}
	events  chan StateEvent

	// Dispatch bookkeeping, written by the cycle goroutine and read by
	// the API surface
	dispatchMu    sync.RWMutex
	pending       map[string]*PendingCommand
	lastCommanded map[string]commandRecord

	// Latest result per group
	resultsMu sync.RWMutex
	results   map[string]Result

	// Result listeners (websocket hub etc.)
	listenersMu sync.Mutex
	listeners   []func(Result)

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// Controller-level context, cancelled on Stop to abort in-flight work
	ctx       context.Context
	ctxCancel context.CancelFunc

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Clock, replaceable in tests
	now func() time.Time
}

// Options holds configuration for the controller.
type Options struct {
	// Site is the observer location. Required.
	Site Site

	// InstanceID identifies this controller on system topics.
	// Default: "solshade".
	InstanceID string

	// Version is the software version reported in health messages.
	Version string

	// Interval is the periodic recompute interval. Default: one minute.
	Interval time.Duration

	// HealthInterval is how often health is published. Default: 30s.
	HealthInterval time.Duration

	// SensorMaxAge is how old a sensor reading may be before the climate
	// overlay treats it as unavailable. Zero disables the check.
	SensorMaxAge time.Duration

	// Groups supplies the enabled cover groups. Required.
	Groups GroupSource

	// MQTTClient is the broker connection. Required.
	MQTTClient MQTTClient

	// Logger is optional structured logger.
	Logger Logger

	// History is optional persistence for cycle results.
	History CycleRecorder

	// Telemetry is optional time-series output for cycle results.
	Telemetry CycleRecorder

	// Audit is optional persistence for dispatched commands.
	Audit CommandAuditor
}

// NewController creates a controller instance. Call Start to begin.
func NewController(opts Options) (*Controller, error) {
	if err := opts.Site.Validate(); err != nil {
		return nil, err
	}
	if opts.Groups == nil {
		return nil, fmt.Errorf("group source is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}

	instance := opts.InstanceID
	if instance == "" {
		instance = "solshade"
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultCycleInterval
	}

	// Controller-level context for cancelling work on shutdown
	ctx, ctxCancel := context.WithCancel(context.Background())

	c := &Controller{
		site:          opts.Site,
		instance:      instance,
		interval:      interval,
		groups:        opts.Groups,
		mqtt:          opts.MQTTClient,
		sensors:       NewSensorStore(opts.SensorMaxAge),
		states:        NewStateStore(),
		tracker:       NewTracker(),
		history:       opts.History,   // May be nil (optional)
		telemetry:     opts.Telemetry, // May be nil (optional)
		audit:         opts.Audit,     // May be nil (optional)
		trigger:       make(chan struct{}, 1),
		events:        make(chan StateEvent, eventQueueSize),
		pending:       make(map[string]*PendingCommand),
		lastCommanded: make(map[string]commandRecord),
		results:       make(map[string]Result),
		done:          make(chan struct{}),
		ctx:           ctx,
		ctxCancel:     ctxCancel,
		logger:        opts.Logger,
		now:           time.Now,
	}

	c.health = NewHealthReporter(HealthReporterConfig{
		InstanceID: instance,
		Version:    opts.Version,
		Interval:   opts.HealthInterval,
		Publisher:  opts.MQTTClient,
	})
	if opts.Logger != nil {
		c.health.SetLogger(opts.Logger)
	}

	return c, nil
}

// Start begins controller operation: subscribes to state topics, starts
// health reporting and launches the control loop.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.health.PublishStarting(); err != nil {
		c.logError("failed to publish starting status", err)
	}

	topics := mqtt.Topics{}

	stateTopic := topics.AllCoverStates()
	if err := c.mqtt.Subscribe(stateTopic, 1, c.handleCoverState); err != nil {
		return fmt.Errorf("subscribe to cover states: %w", err)
	}
	c.logInfo("subscribed to cover states", "topic", stateTopic)

	sensorTopic := topics.AllSensorStates()
	if err := c.mqtt.Subscribe(sensorTopic, 1, c.handleSensorState); err != nil {
		return fmt.Errorf("subscribe to sensor states: %w", err)
	}
	c.logInfo("subscribed to sensor states", "topic", sensorTopic)

	c.health.Start(ctx)
	c.publishSystemStatus("online")

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logInfo("controller started",
		"instance", c.instance,
		"interval", c.interval.String())

	return nil
}

// Stop gracefully shuts down the controller.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)

		// Cancel controller context to abort in-flight work
		c.ctxCancel()

		// Stop health reporting (publishes "stopping" status)
		c.health.Stop()

		// Wait for the control loop to drain
		c.wg.Wait()

		c.publishSystemStatus("offline")
		c.logInfo("controller stopped")
	})
}

// RequestCycle schedules a control cycle. Requests arriving while one is
// already queued collapse into it.
func (c *Controller) RequestCycle() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// runLoop owns the control cycle: exactly one runs at a time, fed by the
// periodic ticker and coalesced event triggers. Cycles run under the
// controller's own context so Stop aborts in-flight persistence, while
// ctx lets the caller tear the loop down externally.
func (c *Controller) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Initial cycle so covers take position at startup
	c.runCycle(c.ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.runCycle(c.ctx)
		case <-c.trigger:
			c.runCycle(c.ctx)
		}
	}
}

// handleCoverState processes a message on solshade/state/cover/+.
func (c *Controller) handleCoverState(topic string, payload []byte) {
	device := mqtt.DeviceFromStateTopic(topic)
	if device == "" {
		c.logDebug("ignoring state on unexpected topic", "topic", topic)
		return
	}

	msg, err := ParseStateMessage(payload)
	if err != nil {
		c.logDebug("ignoring malformed cover state", "device", device, "error", err)
		return
	}

	at := msg.Timestamp
	if at.IsZero() {
		at = c.now()
	}
	merged := c.states.Set(device, CoverState{
		Position:  msg.Position,
		Tilt:      msg.Tilt,
		UpdatedAt: at,
	})

	select {
	case c.events <- StateEvent{Device: device, State: merged}:
	default:
		// Queue full: the state store keeps the latest values, only this
		// event's deviation pass is lost.
		c.health.RecordDroppedEvent()
		c.logWarn("state event queue full, dropping event", "device", device)
	}

	c.RequestCycle()
}

// handleSensorState processes a message on solshade/state/sensor/+.
func (c *Controller) handleSensorState(topic string, payload []byte) {
	sensor := mqtt.SensorFromStateTopic(topic)
	if sensor == "" {
		c.logDebug("ignoring sensor on unexpected topic", "topic", topic)
		return
	}

	msg, err := ParseSensorMessage(payload)
	if err != nil {
		c.logDebug("ignoring malformed sensor reading", "sensor", sensor, "error", err)
		return
	}

	c.sensors.Set(sensor, msg.Value, msg.Timestamp)
	c.RequestCycle()
}

// runCycle executes one full control cycle: override bookkeeping first,
// then solve, arbitrate and dispatch per group.
func (c *Controller) runCycle(ctx context.Context) {
	now := c.now().In(c.site.Timezone)

	groups, err := c.groups.ListEnabled(ctx)
	if err != nil {
		c.logError("failed to list cover groups", err)
		return
	}

	// Device -> owning group for this cycle's snapshot
	index := make(map[string]*cover.Group)
	devices := make([]string, 0, len(groups))
	for i := range groups {
		for _, d := range groups[i].Devices {
			index[d] = &groups[i]
			devices = append(devices, d)
		}
	}
	c.tracker.SetDevices(devices)
	c.states.Prune(func(device string) bool {
		_, ok := index[device]
		return ok
	})

	// Process state events queued since the last cycle. Deviations found
	// here must suppress dispatch to the same device below.
	c.drainEvents(index)

	// Release overrides whose reset window elapsed
	released := c.tracker.Sweep(c.now(), func(device string) time.Duration {
		if g, ok := index[device]; ok {
			return g.Behaviour.ManualReset
		}
		return 0
	})
	for _, device := range released {
		c.logInfo("manual override released", "device", device)
	}

	sun := solar.Position(now, c.site.Latitude, c.site.Longitude)

	for i := range groups {
		c.runGroup(ctx, &groups[i], sun, now)
	}

	c.health.RecordCycle(c.now())
	c.health.SetCounts(len(groups), len(devices), c.tracker.Count())
}

// drainEvents empties the event queue into the override state machine.
func (c *Controller) drainEvents(index map[string]*cover.Group) {
	for {
		select {
		case ev := <-c.events:
			c.processEvent(ev, index)
		default:
			return
		}
	}
}

// processEvent runs one state event through pending-command confirmation
// and manual-deviation detection.
func (c *Controller) processEvent(ev StateEvent, index map[string]*cover.Group) {
	group, ok := index[ev.Device]
	if !ok {
		c.logDebug("state event for unmanaged device", "device", ev.Device)
		return
	}

	c.dispatchMu.Lock()
	if p := c.pending[ev.Device]; p != nil && p.Awaiting {
		if p.Command.Matches(ev.State) {
			p.Awaiting = false
			c.dispatchMu.Unlock()
			c.logDebug("command confirmed", "device", ev.Device, "command_id", p.CommandID)
			return
		}
		// Still travelling towards the commanded values
		c.dispatchMu.Unlock()
		return
	}
	last, commanded := c.lastCommanded[ev.Device]
	c.dispatchMu.Unlock()

	if !commanded {
		// Never commanded this device; nothing to deviate from
		return
	}
	if !deviatesFrom(group.Type, group.Geometry.DoubleToggle, ev.State, last.Command) {
		return
	}

	at := ev.State.UpdatedAt
	if at.IsZero() {
		at = c.now()
	}
	if c.tracker.MarkManual(ev.Device, at, group.Behaviour.ManualAllowReset) {
		c.logInfo("manual override engaged",
			"device", ev.Device,
			"group", group.ID)
	}
}

// runGroup solves one group and dispatches to its devices.
func (c *Controller) runGroup(ctx context.Context, group *cover.Group, sun solar.SunPosition, now time.Time) {
	day := cover.NewDaylight(now, c.site.Latitude, c.site.Longitude, group.Geometry)
	daylight := day.Contains(now)

	var target cover.Target
	solver, err := cover.NewSolver(group.Type, group.Geometry)
	if err != nil {
		// Incomplete geometry is non-fatal: hold the configured defaults
		c.logWarn("solver unavailable, using defaults",
			"group", group.ID,
			"error", err)
		target = cover.DefaultTarget(group.Geometry, daylight)
	} else {
		target = solver.Compute(sun, daylight)
	}

	method := climate.MethodIntermediate
	position := target.Position
	if group.Climate.Enabled {
		decision := climate.Apply(group.Climate, c.sensors.ClimateSignals(group.Climate), target.Position, target.Valid)
		position = decision.Position
		method = decision.Method
	}

	arbitrated := Arbitrate(position, target.Tilt, group.Geometry, group.Behaviour)

	manual := c.tracker.ManualFor(group.Devices)
	result := newResult(group, arbitrated, method, target.Valid, day, manual, c.now().UTC())

	c.storeResult(result)
	c.publishResult(result)
	c.recordResult(ctx, result)

	cmd := commandFor(group.Type, group.Geometry.DoubleToggle, arbitrated)
	if cmd.Empty() {
		return
	}
	for _, device := range group.Devices {
		if c.tracker.IsManual(device) {
			continue
		}
		if !c.shouldDispatch(device, group.Behaviour, cmd, now) {
			continue
		}
		c.dispatch(ctx, group.ID, device, cmd)
	}
}

// shouldDispatch applies the dispatch gates: the daily window, the
// per-device command spacing, and the minimum worthwhile movement.
func (c *Controller) shouldDispatch(device string, beh cover.Behaviour, cmd Command, now time.Time) bool {
	// Daily dispatch window, minutes from local midnight; -1 disables a
	// side. The end minute itself is outside the window.
	minutes := now.Hour()*60 + now.Minute()
	if beh.StartMinutes >= 0 && minutes < beh.StartMinutes {
		return false
	}
	if beh.EndMinutes >= 0 && minutes >= beh.EndMinutes {
		return false
	}

	c.dispatchMu.RLock()
	last, commanded := c.lastCommanded[device]
	c.dispatchMu.RUnlock()
	if commanded && c.now().Sub(last.IssuedAt) < beh.MinTimeDelta {
		return false
	}

	state, known := c.states.Get(device)
	if !known {
		// Never reported: command it into a known position
		return true
	}
	return exceedsMinChange(cmd, state, beh.MinChange)
}

// exceedsMinChange reports whether any commanded channel moves the
// device at least minChange percent points from its reported value.
// Channels the device has never reported always qualify.
func exceedsMinChange(cmd Command, state CoverState, minChange float64) bool {
	if cmd.Position != nil {
		if state.Position == nil || math.Abs(*state.Position-float64(*cmd.Position)) >= minChange {
			return true
		}
	}
	if cmd.Tilt != nil {
		if state.Tilt == nil || math.Abs(*state.Tilt-float64(*cmd.Tilt)) >= minChange {
			return true
		}
	}
	return false
}

// dispatch publishes a movement command to one device. The pending
// record is written before the publish, so a state report racing the
// broker round-trip reads as settling rather than a manual deviation. A
// failed publish is logged and dropped; the next cycle's gates retry it
// naturally.
func (c *Controller) dispatch(ctx context.Context, groupID, device string, cmd Command) {
	now := c.now()
	msg := CommandMessage{
		CommandID: uuid.NewString(),
		Device:    device,
		Position:  cmd.Position,
		Tilt:      cmd.Tilt,
		Timestamp: now.UTC(),
		Source:    c.instance,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logError("failed to encode command", err)
		return
	}

	c.dispatchMu.Lock()
	c.pending[device] = &PendingCommand{
		Device:    device,
		CommandID: msg.CommandID,
		Command:   cmd,
		IssuedAt:  now,
		Awaiting:  true,
	}
	c.lastCommanded[device] = commandRecord{Command: cmd, IssuedAt: now}
	c.dispatchMu.Unlock()

	topic := mqtt.Topics{}.CoverCommand(device)
	if err := c.mqtt.Publish(topic, payload, commandQoS, false); err != nil {
		c.dispatchMu.Lock()
		if p := c.pending[device]; p != nil && p.CommandID == msg.CommandID {
			p.Awaiting = false
		}
		c.dispatchMu.Unlock()
		c.health.RecordCommand(true)
		c.logWarn("command dispatch failed",
			"device", device,
			"error", err)
		return
	}

	c.health.RecordCommand(false)
	if c.audit != nil {
		if err := c.audit.RecordCommand(ctx, groupID, msg); err != nil {
			c.logWarn("failed to audit command",
				"device", device,
				"error", err)
		}
	}
	c.logInfo("command dispatched",
		"device", device,
		"position", channelValue(cmd.Position),
		"tilt", channelValue(cmd.Tilt),
		"command_id", msg.CommandID)
}

// storeResult keeps the latest result and fans it out to listeners.
func (c *Controller) storeResult(result Result) {
	c.resultsMu.Lock()
	c.results[result.GroupID] = result
	c.resultsMu.Unlock()

	c.listenersMu.Lock()
	listeners := append(([]func(Result))(nil), c.listeners...)
	c.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(result)
	}
}

// publishResult publishes a group result (QoS 1, retained) so late
// subscribers see the current cycle.
func (c *Controller) publishResult(result Result) {
	payload, err := json.Marshal(result)
	if err != nil {
		c.logError("failed to encode result", err)
		return
	}
	topic := mqtt.Topics{}.GroupResult(result.GroupID)
	if err := c.mqtt.Publish(topic, payload, resultQoS, true); err != nil {
		c.logWarn("failed to publish result",
			"group", result.GroupID,
			"error", err)
	}
}

// recordResult hands the result to the optional persistence sinks.
func (c *Controller) recordResult(ctx context.Context, result Result) {
	if c.history != nil {
		if err := c.history.RecordCycle(ctx, result); err != nil {
			c.logWarn("failed to record cycle history",
				"group", result.GroupID,
				"error", err)
		}
	}
	if c.telemetry != nil {
		if err := c.telemetry.RecordCycle(ctx, result); err != nil {
			c.logWarn("failed to write cycle telemetry",
				"group", result.GroupID,
				"error", err)
		}
	}
}

// publishSystemStatus publishes the retained online/offline marker.
func (c *Controller) publishSystemStatus(status string) {
	payload, err := json.Marshal(StatusMessage{
		Instance:  c.instance,
		Status:    status,
		Timestamp: c.now().UTC(),
	})
	if err != nil {
		return
	}
	if err := c.mqtt.Publish(mqtt.Topics{}.SystemStatus(), payload, 1, true); err != nil {
		c.logWarn("failed to publish system status", "status", status, "error", err)
	}
}

// Results returns the latest result per group, sorted by group ID.
func (c *Controller) Results() []Result {
	c.resultsMu.RLock()
	results := make([]Result, 0, len(c.results))
	for _, r := range c.results {
		results = append(results, r)
	}
	c.resultsMu.RUnlock()

	sort.Slice(results, func(i, j int) bool { return results[i].GroupID < results[j].GroupID })
	return results
}

// Result returns the latest result for one group.
func (c *Controller) Result(groupID string) (Result, bool) {
	c.resultsMu.RLock()
	defer c.resultsMu.RUnlock()
	result, ok := c.results[groupID]
	return result, ok
}

// GroupAttributes assembles the live attributes view for a group.
func (c *Controller) GroupAttributes(group *cover.Group) Attributes {
	attrs := Attributes{
		GroupID:          group.ID,
		Type:             group.Type,
		Devices:          append([]string(nil), group.Devices...),
		DefaultHeight:    group.Geometry.DefaultHeight,
		MaxPosition:      group.Geometry.MaxPosition,
		SunsetPosition:   group.Geometry.SunsetPosition,
		SunsetOffset:     group.Geometry.SunsetOffset.String(),
		SunriseOffset:    group.Geometry.SunriseOffset.String(),
		Azimuth:          group.Geometry.Azimuth,
		FOVLeft:          group.Geometry.FOVLeft,
		FOVRight:         group.Geometry.FOVRight,
		MinChange:        group.Behaviour.MinChange,
		ClimateEnabled:   group.Climate.Enabled,
		WaitingForTarget: make(map[string]bool, len(group.Devices)),
		TargetCall:       make(map[string]Command, len(group.Devices)),
		LastCommanded:    make(map[string]Command, len(group.Devices)),
		ManualControl:    make(map[string]bool, len(group.Devices)),
	}

	c.dispatchMu.RLock()
	for _, device := range group.Devices {
		attrs.WaitingForTarget[device] = false
		if p := c.pending[device]; p != nil {
			attrs.WaitingForTarget[device] = p.Awaiting
			attrs.TargetCall[device] = p.Command
		}
		if last, ok := c.lastCommanded[device]; ok {
			attrs.LastCommanded[device] = last.Command
		}
	}
	c.dispatchMu.RUnlock()

	for _, device := range group.Devices {
		attrs.ManualControl[device] = c.tracker.IsManual(device)
		if since, ok := c.tracker.Since(device); ok {
			if attrs.ManualSince == nil {
				attrs.ManualSince = make(map[string]time.Time)
			}
			attrs.ManualSince[device] = since
		}
	}
	return attrs
}

// ResetManual clears a device's manual override and schedules a cycle so
// automatic control resumes immediately.
func (c *Controller) ResetManual(device string) error {
	if !c.tracker.Watches(device) {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, device)
	}
	if !c.tracker.Reset(device) {
		return fmt.Errorf("%w: %s", ErrNotManual, device)
	}
	c.logInfo("manual override reset", "device", device)
	c.RequestCycle()
	return nil
}

// ManualOverrides returns every device under manual control with its
// engagement time.
func (c *Controller) ManualOverrides() map[string]time.Time {
	return c.tracker.Snapshot()
}

// OnResult registers a listener invoked after every group result. The
// callback runs on the cycle goroutine and must not block.
func (c *Controller) OnResult(fn func(Result)) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, fn)
	c.listenersMu.Unlock()
}

// ControllerMetrics contains metrics data for the API metrics endpoint.
type ControllerMetrics struct {
	Connected       bool
	Status          string
	CyclesRun       uint64
	CommandsSent    uint64
	CommandFailures uint64
	GroupsManaged   int
	DevicesManaged  int
	ManualOverrides int
}

// GetMetrics returns current controller metrics for the API metrics
// endpoint.
func (c *Controller) GetMetrics() ControllerMetrics {
	stats := c.health.Statistics()
	groups, devices, overrides := c.health.Counts()

	connected := c.mqtt != nil && c.mqtt.IsConnected()
	status := "disconnected"
	if connected {
		status = "healthy"
	}

	return ControllerMetrics{
		Connected:       connected,
		Status:          status,
		CyclesRun:       stats.CyclesRun,
		CommandsSent:    stats.CommandsSent,
		CommandFailures: stats.CommandFailures,
		GroupsManaged:   groups,
		DevicesManaged:  devices,
		ManualOverrides: overrides,
	}
}

// SetLogger sets the logger for the controller.
func (c *Controller) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()

	if c.health != nil {
		c.health.SetLogger(logger)
	}
}

// channelValue unwraps an optional channel value for logging.
func channelValue(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// logInfo logs an info message if logger is set.
func (c *Controller) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (c *Controller) logWarn(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (c *Controller) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (c *Controller) logDebug(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
