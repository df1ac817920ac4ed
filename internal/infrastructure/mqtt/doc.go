// Package mqtt provides the broker connection of the DALI gateway.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with per-message QoS and retain
//   - Subscriptions that are restored after a reconnect
//   - Retained presence on graylogic/status/dali/{gateway} with an LWT
//
// # Architecture
//
// The gateway bridges one DALI bus onto the Gray Logic message bus:
//
//	Gray Logic Core ↔ MQTT Broker ↔ DALI gateway ↔ DALI bus
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Gateway.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.Command(), 1, handleCommand)
//	err = client.Publish(topics.Bus(), payload, 0, false)
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) outside a trusted LAN
//   - Set the password through GRAYLOGIC_DALI_MQTT_PASSWORD
package mqtt
