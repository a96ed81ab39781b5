// Package mqtt provides MQTT client connectivity for BillBot Node.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions restored after reconnect
//   - Last Will and Testament (LWT) so the node shows offline when it drops
//
// MQTT is optional. When enabled, the node publishes its gateway connection
// status and capabilities as retained messages, emits an event per executed
// command, and listens for connect/disconnect requests:
//
//	billbot/node/{deviceId}/status        retained, LWT
//	billbot/node/{deviceId}/capabilities  retained
//	billbot/node/{deviceId}/command       events
//	billbot/node/{deviceId}/control       subscribed
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) when the broker is not on localhost
//   - Anyone allowed to publish on the control topic can connect or
//     disconnect the node; restrict it with broker ACLs
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, deviceID)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.PublishRetained(mqtt.Topics{}.NodeStatus(deviceID), payload)
package mqtt
