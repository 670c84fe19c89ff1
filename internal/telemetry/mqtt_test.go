package telemetry

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{topic, qos, retained, payload})
	return nil
}

func TestMQTTSink_TopicPerKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prefix string
		kind   Kind
		want   string
	}{
		{"", KindSessionStarted, "anchors/telemetry/session_started"},
		{"site/7/", KindTrackingLost, "site/7/tracking_lost"},
		{"lab", KindSessionEnded, "lab/session_ended"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, NewMQTTSink(&fakePublisher{}, tt.prefix).Topic(tt.kind))
		})
	}
}

func TestMQTTSink_PublishesJSON(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	sink := NewMQTTSink(pub, "")
	ev := Event{
		ID:            "e1",
		Kind:          KindLocalizationSuccess,
		SessionID:     "S1",
		AnchorID:      "A",
		TrackingState: "tracking",
		ActiveAnchors: 1,
		TimestampMs:   42,
	}
	require.NoError(t, sink.Emit(ev))

	require.Len(t, pub.msgs, 1)
	msg := pub.msgs[0]
	assert.Equal(t, "anchors/telemetry/localization_success", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.False(t, msg.retained)

	var got Event
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, ev, got)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(msg.payload, &raw))
	assert.Equal(t, "S1", raw["session_id"])
	assert.NotContains(t, raw, "forced")
}

func TestMQTTSink_PublishError(t *testing.T) {
	t.Parallel()

	sink := NewMQTTSink(&fakePublisher{err: errors.New("not connected")}, "")
	assert.EqualError(t, sink.Emit(Event{Kind: KindSessionEnded}), "not connected")
}

func TestNewMQTTClient_NotConnected(t *testing.T) {
	t.Parallel()

	c := NewMQTTClient("tcp://127.0.0.1:1", "")
	assert.False(t, c.IsConnected())
}
