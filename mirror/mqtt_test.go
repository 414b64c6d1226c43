package mirror

import (
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pvsim104/config"
	"pvsim104/plant"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mqtt.Client
	mu        sync.Mutex
	connected bool
	messages  []published
}

func (f *fakeClient) IsConnectionOpen() bool { return f.connected }

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	f.messages = append(f.messages, published{topic, qos, retained, b})
	return doneToken{}
}

func (f *fakeClient) Disconnect(uint) {}

func newTestMirror(client mqtt.Client, now time.Time) *Mirror {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Mirror{
		client: client,
		cfg:    config.MQTTConfig{BaseTopic: "plant", QoS: 1},
		log:    l,
		now:    func() time.Time { return now },
	}
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "plant/state", StateTopic("plant"))
	assert.Equal(t, "plant/measurement/100", PointTopic("plant", plant.Analog, 100))
	assert.Equal(t, "plant/status/1002", PointTopic("plant", plant.BinaryStatus, 1002))
}

func TestEnqueueNotConnected(t *testing.T) {
	m := newTestMirror(&fakeClient{}, time.Now())
	err := m.Enqueue(plant.Batch{Kind: plant.Analog, Items: []plant.Item{{Address: 1}}})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestEnqueueAnalog(t *testing.T) {
	now := time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC)
	client := &fakeClient{connected: true}
	m := newTestMirror(client, now)

	err := m.Enqueue(plant.Batch{
		Cause: plant.CauseSpontaneous,
		Kind:  plant.Analog,
		Items: []plant.Item{{Address: 100, Name: "Irradiance", Value: 850}},
	})
	require.NoError(t, err)
	require.Len(t, client.messages, 1)

	msg := client.messages[0]
	assert.Equal(t, "plant/measurement/100", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.False(t, msg.retained)

	var got Message
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, 100, got.Address)
	assert.Equal(t, "Irradiance", got.Name)
	assert.Equal(t, "spontaneous", got.Cause)
	require.NotNil(t, got.Value)
	assert.Equal(t, 850.0, *got.Value)
	assert.Nil(t, got.State)
	assert.True(t, now.Equal(got.Timestamp))
}

func TestEnqueueStatus(t *testing.T) {
	client := &fakeClient{connected: true}
	m := newTestMirror(client, time.Now())

	require.NoError(t, m.Enqueue(plant.Batch{
		Kind:  plant.BinaryStatus,
		Items: []plant.Item{{Address: 1002, Name: "INV2_Status", State: false}},
	}))
	require.Len(t, client.messages, 1)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(client.messages[0].payload, &got))
	assert.Equal(t, false, got["state"])
	assert.NotContains(t, got, "value")
	assert.Equal(t, "status", got["kind"])
}

func TestOnConnectPublishesOnline(t *testing.T) {
	client := &fakeClient{connected: true}
	m := newTestMirror(client, time.Now())

	m.onConnect(client)
	m.Close()

	require.Len(t, client.messages, 2)
	assert.Equal(t, published{"plant/state", 0, true, []byte(PayloadOnline)}, client.messages[0])
	assert.Equal(t, []byte(PayloadOffline), client.messages[1].payload)
}

func TestOptsFromConfig(t *testing.T) {
	opts := OptsFromConfig(config.MQTTConfig{
		Broker:    "tcp://broker:1883",
		Username:  "plant",
		Password:  "secret",
		BaseTopic: "pv",
	})

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "broker:1883", opts.Servers[0].Host)
	assert.Contains(t, opts.ClientID, "pvsim104-")
	assert.Equal(t, "plant", opts.Username)
	assert.Equal(t, "pv/state", opts.WillTopic)
	assert.True(t, opts.WillRetained)
}
