package push

import (
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"device_sync/internal/logger"
)

const (
	mqttQoS         byte = 1
	mqttWaitTimeout      = 10 * time.Second
	mqttQuiesceMs   uint = 250
)

// MQTTConfig selects the broker and topic namespace.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Prefix   string
}

// MQTTChannel receives events published on one topic per category, for example
// "<prefix>/hardware/resultado_comando". paho redials on its own.
type MQTTChannel struct {
	client mqtt.Client
	prefix string
	log    *logger.Logger

	mu       sync.Mutex
	hook     func(bool)
	handlers map[string]Handler
}

func NewMQTTChannel(cfg MQTTConfig, log *logger.Logger) *MQTTChannel {
	c := &MQTTChannel{
		prefix:   strings.TrimSuffix(cfg.Prefix, "/"),
		log:      logger.OrNop(log),
		handlers: make(map[string]Handler),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetCleanSession(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		c.log.Infow("mqtt_connected", "broker", cfg.Broker)
		c.report(true)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.log.Warnw("mqtt_connection_lost", "err", err)
		c.report(false)
	})
	c.client = mqtt.NewClient(opts)
	return c
}

// newMQTTChannelWithClient wires an existing client; used by tests.
func newMQTTChannelWithClient(client mqtt.Client, prefix string, log *logger.Logger) *MQTTChannel {
	return &MQTTChannel{
		client:   client,
		prefix:   strings.TrimSuffix(prefix, "/"),
		log:      logger.OrNop(log),
		handlers: make(map[string]Handler),
	}
}

// Topic maps a category such as "hardware:resultado_comando" to its topic.
func (c *MQTTChannel) Topic(category string) string {
	t := strings.ReplaceAll(category, ":", "/")
	if c.prefix == "" {
		return t
	}
	return c.prefix + "/" + t
}

func (c *MQTTChannel) Open() error {
	return wait(c.client.Connect(), "connect")
}

func (c *MQTTChannel) Close() {
	c.client.Disconnect(mqttQuiesceMs)
}

func (c *MQTTChannel) Connected() bool {
	return c.client.IsConnectionOpen()
}

func (c *MQTTChannel) Subscribe(category string, h Handler) error {
	topic := c.Topic(category)
	err := wait(c.client.Subscribe(topic, mqttQoS, func(_ mqtt.Client, msg mqtt.Message) {
		h(msg.Payload())
	}), "subscribe "+topic)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.handlers[category] = h
	c.mu.Unlock()
	return nil
}

// Unsubscribe forgets the handler even if the broker cannot be told.
func (c *MQTTChannel) Unsubscribe(category string) error {
	c.mu.Lock()
	delete(c.handlers, category)
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		return nil
	}
	topic := c.Topic(category)
	return wait(c.client.Unsubscribe(topic), "unsubscribe "+topic)
}

// Subscriptions reports how many categories have a handler.
func (c *MQTTChannel) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

func (c *MQTTChannel) OnConnectionChange(fn func(connected bool)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

func (c *MQTTChannel) report(connected bool) {
	c.mu.Lock()
	hook := c.hook
	c.mu.Unlock()
	if hook != nil {
		hook(connected)
	}
}

func wait(t mqtt.Token, op string) error {
	if !t.WaitTimeout(mqttWaitTimeout) {
		return fmt.Errorf("mqtt %s: timed out after %s", op, mqttWaitTimeout)
	}
	if err := t.Error(); err != nil {
		return fmt.Errorf("mqtt %s: %w", op, err)
	}
	return nil
}
