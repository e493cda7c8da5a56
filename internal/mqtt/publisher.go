package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"minicorr/internal/controller"
	"minicorr/internal/logger"
	"minicorr/internal/poller"

	paho "github.com/eclipse/paho.mqtt.golang"
)

var (
	ErrPublishTimeout = errors.New("mqtt publish timed out")
	ErrNotConnected   = errors.New("mqtt client not connected")
)

const (
	defaultPort           = 1883
	defaultClientID       = "minicorr"
	defaultTopicPrefix    = "minicorr"
	defaultKeepAlive      = 60 * time.Second
	defaultPublishTimeout = 2 * time.Second
	disconnectQuiesceMs   = 250
)

type Config struct {
	Enabled        bool
	Broker         string
	Port           int
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	Retain         bool
	KeepAlive      time.Duration
	PublishTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.ClientID == "" {
		c.ClientID = defaultClientID
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = defaultTopicPrefix
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = defaultKeepAlive
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = defaultPublishTimeout
	}
	return c
}

// StatusTopic carries "online"/"offline"; the broker publishes the will on
// an unclean disconnect.
func (c Config) StatusTopic() string { return c.withDefaults().TopicPrefix + "/status" }

func (c Config) TemperatureTopic() string { return c.withDefaults().TopicPrefix + "/temperature" }

// ClientOptions builds paho options with auto reconnect and a last will.
func (c Config) ClientOptions(log *logger.Logger) *paho.ClientOptions {
	c = c.withDefaults()
	status := c.StatusTopic()
	return paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", c.Broker, c.Port)).
		SetClientID(c.ClientID).
		SetUsername(c.Username).
		SetPassword(c.Password).
		SetAutoReconnect(true).
		SetKeepAlive(c.KeepAlive).
		SetPingTimeout(10*time.Second).
		SetWill(status, "offline", 1, true).
		SetOnConnectHandler(func(client paho.Client) {
			log.Infow("mqtt_connected", "broker", c.Broker)
			if t := client.Publish(status, 1, true, "online"); t.WaitTimeout(c.PublishTimeout) && t.Error() != nil {
				log.Warnw("mqtt_status_publish_failed", "err", t.Error())
			}
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warnw("mqtt_connection_lost", "err", err)
		}).
		SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
			log.Infow("mqtt_reconnecting")
		})
}

// TemperatureMessage is the JSON payload for one sample.
type TemperatureMessage struct {
	TakenAt time.Time `json:"taken_at"`
	Raw     string    `json:"raw"`
	ValueC  *float64  `json:"value_c,omitempty"`
	OK      bool      `json:"ok"`
}

func messageFor(s poller.Sample) TemperatureMessage {
	msg := TemperatureMessage{TakenAt: s.TakenAt.UTC(), Raw: s.Raw}
	if v, err := controller.ParseTemperature(s.Raw); err == nil {
		msg.ValueC = &v
		msg.OK = true
	}
	return msg
}

// Publisher sends temperature samples to a broker.
type Publisher struct {
	client paho.Client
	cfg    Config
	log    *logger.Logger
}

func NewPublisher(cfg Config, log *logger.Logger) *Publisher {
	return NewPublisherWithClient(paho.NewClient(cfg.ClientOptions(log)), cfg, log)
}

// NewPublisherWithClient uses an existing paho client.
func NewPublisherWithClient(client paho.Client, cfg Config, log *logger.Logger) *Publisher {
	return &Publisher{client: client, cfg: cfg.withDefaults(), log: log}
}

// Connect tries until the broker accepts or ctx ends.
func (p *Publisher) Connect(ctx context.Context, retryDelay time.Duration) error {
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}
	for attempt := 1; ; attempt++ {
		t := p.client.Connect()
		select {
		case <-t.Done():
		case <-ctx.Done():
			return fmt.Errorf("mqtt connect canceled: %w", ctx.Err())
		}
		if t.Error() == nil {
			return nil
		}
		p.log.Warnw("mqtt_connect_failed", "attempt", attempt, "err", t.Error())

		select {
		case <-ctx.Done():
			return fmt.Errorf("mqtt connect canceled: %w", ctx.Err())
		case <-time.After(retryDelay):
		}
	}
}

// Publish sends one sample. Samples are dropped, not queued, while the
// broker is unreachable.
func (p *Publisher) Publish(s poller.Sample) error {
	if !p.client.IsConnected() {
		return ErrNotConnected
	}
	payload, err := json.Marshal(messageFor(s))
	if err != nil {
		return fmt.Errorf("encode sample: %w", err)
	}
	t := p.client.Publish(p.cfg.TemperatureTopic(), p.cfg.QoS, p.cfg.Retain, payload)
	if !t.WaitTimeout(p.cfg.PublishTimeout) {
		return ErrPublishTimeout
	}
	if err := t.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", p.cfg.TemperatureTopic(), err)
	}
	return nil
}

// Sink adapts the publisher to a monitoring session. Closing the sink leaves
// the broker connection up for the next session.
func (p *Publisher) Sink() poller.Sink { return publisherSink{p} }

type publisherSink struct{ p *Publisher }

func (s publisherSink) Record(smp poller.Sample) error { return s.p.Publish(smp) }

func (publisherSink) Close() error { return nil }

// Disconnect publishes "offline" and closes the broker connection.
func (p *Publisher) Disconnect() {
	if !p.client.IsConnected() {
		return
	}
	t := p.client.Publish(p.cfg.StatusTopic(), 1, true, "offline")
	t.WaitTimeout(p.cfg.PublishTimeout)
	p.client.Disconnect(disconnectQuiesceMs)
}
