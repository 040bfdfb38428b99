package mqtt

import "fmt"

// Topic prefixes for the SolShade MQTT namespace.
//
// All topics use the flat scheme: solshade/{category}/{kind}/{id}.
// Cover bridges publish reported state on the state topics and consume
// movement commands from the command topics; the controller owns the
// result and system topics.
const (
	// TopicPrefix is the base for all SolShade topics.
	TopicPrefix = "solshade"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "solshade/system"
)

// Topics provides builders for SolShade MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.CoverState("blind-living-1")
//	// Returns: "solshade/state/cover/blind-living-1"
type Topics struct{}

// CoverState returns the topic a bridge reports cover state on.
//
// Example: solshade/state/cover/blind-living-1
func (Topics) CoverState(deviceID string) string {
	return fmt.Sprintf("%s/state/cover/%s", TopicPrefix, deviceID)
}

// CoverCommand returns the topic the controller issues cover commands on.
//
// Example: solshade/command/cover/blind-living-1
func (Topics) CoverCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/cover/%s", TopicPrefix, deviceID)
}

// SensorState returns the topic a climate or weather feed publishes on.
//
// Example: solshade/state/sensor/temp-living
func (Topics) SensorState(sensorID string) string {
	return fmt.Sprintf("%s/state/sensor/%s", TopicPrefix, sensorID)
}

// GroupResult returns the topic for a group's per-cycle control result.
// Published retained so late subscribers see the current cycle.
//
// Example: solshade/result/living-south
func (Topics) GroupResult(groupID string) string {
	return fmt.Sprintf("%s/result/%s", TopicPrefix, groupID)
}

// SystemHealth returns the health topic for a controller instance.
// Also used as the LWT topic so brokers flag a dead controller.
//
// Example: solshade/system/health/solshade-main
func (Topics) SystemHealth(instanceID string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefixSystem, instanceID)
}

// SystemStatus returns the controller online/offline status topic.
//
// Example: solshade/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// ─── Wildcard patterns for subscriptions ───

// AllCoverStates returns a pattern matching every cover state report.
//
// Pattern: solshade/state/cover/+
func (Topics) AllCoverStates() string {
	return fmt.Sprintf("%s/state/cover/+", TopicPrefix)
}

// AllSensorStates returns a pattern matching every sensor feed.
//
// Pattern: solshade/state/sensor/+
func (Topics) AllSensorStates() string {
	return fmt.Sprintf("%s/state/sensor/+", TopicPrefix)
}

// AllGroupResults returns a pattern matching every group result.
//
// Pattern: solshade/result/+
func (Topics) AllGroupResults() string {
	return fmt.Sprintf("%s/result/+", TopicPrefix)
}

// AllTopics returns a pattern matching all SolShade topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: solshade/#
func (Topics) AllTopics() string {
	return "solshade/#"
}

// DeviceFromStateTopic extracts the device ID from a cover state topic,
// returning "" when the topic does not match the scheme.
func DeviceFromStateTopic(topic string) string {
	return suffixAfter(topic, TopicPrefix+"/state/cover/")
}

// SensorFromStateTopic extracts the sensor ID from a sensor state topic,
// returning "" when the topic does not match the scheme.
func SensorFromStateTopic(topic string) string {
	return suffixAfter(topic, TopicPrefix+"/state/sensor/")
}

func suffixAfter(topic, prefix string) string {
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return ""
	}
	return topic[len(prefix):]
}
