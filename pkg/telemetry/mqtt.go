// Package telemetry mirrors the status feed to an MQTT broker so fleet
// dashboards can watch the arm without connecting to the daemon
// directly. Publishing is fire-and-forget: a dead broker never slows
// the control path.
package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/parol-robotics/go-parol6/internal/log"
)

const (
	connectTimeout = 5 * time.Second
	publishQoS     = 0
)

// Mirror publishes topic payloads under a root MQTT topic.
type Mirror struct {
	client mqtt.Client
	root   string
}

// NewMirror connects to broker and returns the mirror. The paho client
// reconnects on its own; a broker that is down at startup only logs.
func NewMirror(broker, rootTopic string) *Mirror {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("parol6-%d", time.Now().UnixNano())).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("mqtt connection lost", "broker", broker, "err", err)
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Info("mqtt connected", "broker", broker)
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(connectTimeout) && token.Error() != nil {
		log.Warn("mqtt connect failed, will retry in background", "broker", broker, "err", token.Error())
	}
	return &Mirror{client: client, root: rootTopic}
}

// Publish mirrors one payload to <root>/<topic>. Never blocks on the
// broker; undeliverable messages are dropped.
func (m *Mirror) Publish(topic string, v interface{}) {
	if !m.client.IsConnectionOpen() {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Warn("mqtt encode failed", "topic", topic, "err", err)
		return
	}
	m.client.Publish(m.root+"/"+topic, publishQoS, false, data)
}

// Close disconnects from the broker.
func (m *Mirror) Close() {
	m.client.Disconnect(250)
}
