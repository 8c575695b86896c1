// Package mqtt provides the bridge's optional MQTT connection.
//
// The bridge only publishes: a retained health message under
// <prefix>/health and a retained copy of every value pushed to the hub
// under <prefix>/state/<device>/<property>. A last will registered at
// connect time marks the bridge offline if it disappears.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, &mqtt.Will{
//	    Topic:   "midea/health",
//	    Payload: lwt,
//	    QoS:     1,
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnConnect(func() { health.PublishNow() })
//
// TLS is enabled with broker.tls; the minimum version is TLS 1.2.
package mqtt
