package mirror

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pvsim104/config"
	"pvsim104/plant"
)

const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

var ErrNotConnected = errors.New("mqtt broker not connected")

// Message is the JSON document published for one reported point.
type Message struct {
	Address   int       `json:"address"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Value     *float64  `json:"value,omitempty"`
	State     *bool     `json:"state,omitempty"`
	Cause     string    `json:"cause"`
	Timestamp time.Time `json:"timestamp"`
}

// Mirror republishes spontaneous reports to an MQTT broker.
type Mirror struct {
	client mqtt.Client
	cfg    config.MQTTConfig
	log    logrus.FieldLogger
	now    func() time.Time
}

var _ plant.Publisher = (*Mirror)(nil)

func OptsFromConfig(cfg config.MQTTConfig) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID("pvsim104-" + uuid.NewString())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetWill(StateTopic(cfg.BaseTopic), PayloadOffline, 0, true)
	return opts
}

// New creates a mirror over a client built from opts.
func New(cfg config.MQTTConfig, opts *mqtt.ClientOptions, logger logrus.FieldLogger) *Mirror {
	m := &Mirror{cfg: cfg, log: logger.WithField("component", "mqtt"), now: time.Now}
	opts.SetOnConnectHandler(m.onConnect)
	opts.SetConnectionLostHandler(m.onConnectionLost)
	m.client = mqtt.NewClient(opts)
	return m
}

func StateTopic(base string) string {
	return fmt.Sprintf("%s/state", base)
}

func PointTopic(base string, kind plant.Kind, addr int) string {
	return fmt.Sprintf("%s/%s/%d", base, segment(kind), addr)
}

func segment(k plant.Kind) string {
	switch k {
	case plant.Analog:
		return "measurement"
	case plant.BinaryStatus:
		return "status"
	default:
		return "command"
	}
}

// Connect starts connecting in the background; the client keeps retrying.
func (m *Mirror) Connect() {
	m.log.WithField("broker", m.cfg.Broker).Info("connecting to MQTT broker")
	m.client.Connect()
}

func (m *Mirror) Close() {
	if m.client.IsConnectionOpen() {
		m.client.Publish(StateTopic(m.cfg.BaseTopic), 0, true, PayloadOffline).WaitTimeout(time.Second)
	}
	m.client.Disconnect(250)
}

func (m *Mirror) onConnect(c mqtt.Client) {
	m.log.Info("MQTT connected")
	c.Publish(StateTopic(m.cfg.BaseTopic), 0, true, PayloadOnline)
}

func (m *Mirror) onConnectionLost(_ mqtt.Client, err error) {
	m.log.WithError(err).Warn("MQTT connection lost")
}

// Enqueue publishes one message per batch item without waiting for the broker.
func (m *Mirror) Enqueue(b plant.Batch) error {
	if !m.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	ts := m.now()
	for _, it := range b.Items {
		payload, err := json.Marshal(newMessage(b, it, ts))
		if err != nil {
			return fmt.Errorf("encode point %d: %w", it.Address, err)
		}
		token := m.client.Publish(PointTopic(m.cfg.BaseTopic, b.Kind, it.Address), m.cfg.QoS, false, payload)
		go m.watch(token, it.Address)
	}
	return nil
}

func (m *Mirror) watch(token mqtt.Token, addr int) {
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		m.log.WithError(token.Error()).WithField("ioa", addr).Debug("MQTT publish failed")
	}
}

func newMessage(b plant.Batch, it plant.Item, ts time.Time) Message {
	msg := Message{
		Address:   it.Address,
		Name:      it.Name,
		Kind:      segment(b.Kind),
		Cause:     b.Cause.String(),
		Timestamp: ts,
	}
	if b.Kind == plant.Analog {
		v := it.Value
		msg.Value = &v
	} else {
		s := it.State
		msg.State = &s
	}
	return msg
}
