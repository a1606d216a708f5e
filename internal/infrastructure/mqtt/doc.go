// Package mqtt provides the broker connection for HomeCore.
//
// This package manages:
//   - one client connection with bounded initial connect and auto-reconnect
//   - publish with QoS, validation and no offline queueing
//   - tracked subscriptions that survive reconnects
//   - a retained Last Will on homecore/system/status
//
// Devices talk to the core through the home/ topic hierarchy described on
// Topics. Domain handling of those messages lives in internal/bridge.
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT)
//	client.SetLogger(logger)
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err := client.Subscribe(mqtt.Topics{}.AllDeviceStatus(), 1,
//	    func(topic string, payload []byte) error {
//	        return handleStatus(topic, payload)
//	    })
//
//	err = client.Publish(mqtt.Topics{}.DeviceCommand("home/living/light1"), []byte(`{"on":true}`), 1, false)
package mqtt
