package control

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Command is a pair of channel values for a single device. A nil channel
// is left untouched by the device. The same shape is used on the command
// topic, in the last-commanded ledger and in the published attributes.
type Command struct {
	Position *int `json:"position,omitempty"`
	Tilt     *int `json:"tilt,omitempty"`
}

// Matches reports whether a reported state has reached every channel the
// command set. Channels the command left nil are not consulted.
func (c Command) Matches(state CoverState) bool {
	if c.Position != nil && !channelReached(state.Position, c.Position) {
		return false
	}
	if c.Tilt != nil && !channelReached(state.Tilt, c.Tilt) {
		return false
	}
	return true
}

// channelReached reports whether a reported channel value, rounded to the
// integer the device was asked for, equals the commanded value.
func channelReached(reported *float64, commanded *int) bool {
	return reported != nil && commanded != nil && int(math.Round(*reported)) == *commanded
}

// channelDeviates reports whether a channel holds a value other than the
// one last commanded. A channel missing either side cannot deviate.
func channelDeviates(reported *float64, commanded *int) bool {
	if reported == nil || commanded == nil {
		return false
	}
	return int(math.Round(*reported)) != *commanded
}

// Empty reports whether the command sets no channel at all.
func (c Command) Empty() bool {
	return c.Position == nil && c.Tilt == nil
}

// CommandMessage is the payload published to solshade/command/cover/{device}.
type CommandMessage struct {
	CommandID string    `json:"command_id"`
	Device    string    `json:"device"`
	Position  *int      `json:"position,omitempty"`
	Tilt      *int      `json:"tilt,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// StateMessage is the payload expected on solshade/state/cover/{device}.
// Devices report whichever channels they have; the timestamp is the
// device's own clock and may be zero for feeds that do not supply one.
type StateMessage struct {
	Position  *float64  `json:"position,omitempty"`
	Tilt      *float64  `json:"tilt,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// SensorMessage is the payload expected on solshade/state/sensor/{sensor}.
// Value may be a number (temperatures), a string (weather condition) or a
// boolean (presence); the store keeps it untyped and coerces on read.
type SensorMessage struct {
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ParseStateMessage decodes a cover state payload.
func ParseStateMessage(payload []byte) (StateMessage, error) {
	var msg StateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return StateMessage{}, fmt.Errorf("parse state message: %w", err)
	}
	if msg.Position == nil && msg.Tilt == nil {
		return StateMessage{}, fmt.Errorf("parse state message: no position or tilt channel")
	}
	return msg, nil
}

// ParseSensorMessage decodes a sensor reading payload.
func ParseSensorMessage(payload []byte) (SensorMessage, error) {
	var msg SensorMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return SensorMessage{}, fmt.Errorf("parse sensor message: %w", err)
	}
	return msg, nil
}

// StatusMessage is published retained to solshade/system/status when the
// controller comes up or shuts down cleanly.
type StatusMessage struct {
	Instance  string    `json:"instance"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthStatus indicates the controller's operational status.
type HealthStatus string

// Health status values.
const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
	HealthOffline  HealthStatus = "offline"
)

// ControllerStatistics contains operational counters since start.
type ControllerStatistics struct {
	CyclesRun       uint64 `json:"cycles_run"`
	CommandsSent    uint64 `json:"commands_sent"`
	CommandFailures uint64 `json:"command_failures"`
	EventsDropped   uint64 `json:"events_dropped"`
}

// HealthMessage is published retained to solshade/system/health/{instance}.
type HealthMessage struct {
	// Instance is the controller instance identifier.
	Instance string `json:"instance"`

	// Timestamp is when the health status was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status indicates the current operational status.
	Status HealthStatus `json:"status"`

	// Version is the controller software version.
	Version string `json:"version"`

	// UptimeSeconds is how long the controller has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// GroupsManaged and DevicesManaged count the enabled configuration.
	GroupsManaged  int `json:"groups_managed"`
	DevicesManaged int `json:"devices_managed"`

	// ManualOverrides is the number of devices under manual control.
	ManualOverrides int `json:"manual_overrides"`

	// Statistics contains operational metrics.
	Statistics *ControllerStatistics `json:"statistics,omitempty"`

	// LastCycle is when the control cycle last completed.
	LastCycle *time.Time `json:"last_cycle,omitempty"`

	// Reason explains the status (especially for offline/degraded).
	Reason string `json:"reason,omitempty"`
}

// NewLWTMessage creates the Last Will and Testament message. The broker
// publishes it on the health topic if the controller disconnects
// unexpectedly.
func NewLWTMessage(instanceID string) HealthMessage {
	return HealthMessage{
		Instance:  instanceID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}
