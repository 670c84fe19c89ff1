package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/anchorsync/internal/monitoring"
)

// DefaultTopicPrefix is the topic root events are published under.
const DefaultTopicPrefix = "anchors/telemetry"

// Publisher is the subset of an MQTT client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTSink publishes each event as JSON to <prefix>/<kind>.
type MQTTSink struct {
	pub    Publisher
	prefix string
	qos    byte
}

// NewMQTTSink creates a sink publishing at QoS 1. An empty prefix uses
// DefaultTopicPrefix.
func NewMQTTSink(pub Publisher, prefix string) *MQTTSink {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &MQTTSink{pub: pub, prefix: prefix, qos: 1}
}

// Topic returns the topic events of kind k are published to.
func (s *MQTTSink) Topic(k Kind) string {
	return s.prefix + "/" + string(k)
}

func (s *MQTTSink) Emit(ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	return s.pub.Publish(s.Topic(ev.Kind), s.qos, false, body)
}

// MQTTClient wraps a paho client with context-aware connect.
type MQTTClient struct {
	client pahomqtt.Client
	broker string
}

// NewMQTTClient configures (but does not connect) a client for broker, for
// example "tcp://localhost:1883". An empty clientID is generated.
func NewMQTTClient(broker, clientID string) *MQTTClient {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(broker)
	if clientID == "" {
		clientID = fmt.Sprintf("anchorsync-%d", time.Now().Unix())
	}
	opts.SetClientID(clientID)

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c pahomqtt.Client) {
		monitoring.Logf("telemetry: connected to MQTT broker %s", broker)
	}
	opts.OnConnectionLost = func(c pahomqtt.Client, err error) {
		monitoring.Logf("telemetry: MQTT connection lost: %v", err)
	}

	return &MQTTClient{client: pahomqtt.NewClient(opts), broker: broker}
}

// Connect establishes the broker connection or gives up when ctx is done.
func (m *MQTTClient) Connect(ctx context.Context) error {
	token := m.client.Connect()
	select {
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("failed to connect to MQTT broker %s: %w", m.broker, token.Error())
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("connection timeout: %w", ctx.Err())
	}
}

// Disconnect closes the connection with a short grace period.
func (m *MQTTClient) Disconnect() {
	m.client.Disconnect(250)
}

// IsConnected reports whether the client is connected.
func (m *MQTTClient) IsConnected() bool {
	return m.client.IsConnected()
}

// Publish publishes payload to topic and waits for the broker.
func (m *MQTTClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := m.client.Publish(topic, qos, retained, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}
	return nil
}
