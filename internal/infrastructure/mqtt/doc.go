// Package mqtt provides MQTT client connectivity for Solshade Core.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Solshade uses MQTT as the message bus between the controller and the
// cover bridges. Bridges report position and tilt on the state topics,
// accept movement commands on the command topics, and climate sensors
// stream readings on the sensor topics. The broker (Mosquitto) decouples
// the controller from actuator-specific implementations.
//
//	Solshade Core ↔ MQTT Broker ↔ Cover Bridges / Sensor Feeds
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all cover state updates
//	err = client.Subscribe(mqtt.Topics{}.AllCoverStates(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish command
//	topic := mqtt.Topics{}.CoverCommand("blind-living-1")
//	client.Publish(topic, []byte(`{"position":42}`), 1, false)
package mqtt
