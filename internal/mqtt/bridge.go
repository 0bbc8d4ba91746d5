// Package mqtt bridges the host to an MQTT broker: service calls arrive on
// {prefix}/service/{domain}/{service} and host events are published to
// {prefix}/event/{event_type}.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"homelink/pkg/host"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const connectTimeout = 10 * time.Second

// Config holds MQTT bridge configuration.
type Config struct {
	Broker   string
	Username string
	Password string
	Prefix   string
	ClientID string
}

// Bridge relays service calls and events between MQTT and the host.
type Bridge struct {
	hass   host.Hass
	client pahomqtt.Client
	prefix string
	logger *zap.Logger
	unsub  func()

	ctx    context.Context
	cancel context.CancelFunc

	publish func(topic string, payload []byte, retained bool)
}

func newBridge(hass host.Hass, prefix string, logger *zap.Logger) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		hass:   hass,
		prefix: strings.TrimSuffix(prefix, "/"),
		logger: logger.Named("mqtt"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// NewBridge connects to the broker. The availability topic carries a last
// will of "offline".
func NewBridge(hass host.Hass, cfg Config, logger *zap.Logger) (*Bridge, error) {
	b := newBridge(hass, cfg.Prefix, logger)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "homelink"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(b.availabilityTopic(), "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected", zap.String("broker", cfg.Broker))
			b.publish(b.availabilityTopic(), []byte("online"), true)
			b.subscribeServices()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", zap.Error(err))
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	b.client = pahomqtt.NewClient(opts)
	b.publish = b.clientPublish

	token := b.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

// Start forwards host events to the broker.
func (b *Bridge) Start() {
	b.unsub = b.hass.Subscribe(b.handleEvent)
	b.logger.Info("MQTT bridge started", zap.String("prefix", b.prefix))
}

// Stop publishes offline availability and disconnects.
func (b *Bridge) Stop() {
	b.cancel()
	if b.unsub != nil {
		b.unsub()
	}
	b.publish(b.availabilityTopic(), []byte("offline"), true)
	if b.client != nil {
		b.client.Disconnect(1000)
	}
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) availabilityTopic() string {
	return b.prefix + "/availability"
}

func (b *Bridge) eventTopic(eventType string) string {
	return b.prefix + "/event/" + eventType
}

// parseServiceTopic splits {prefix}/service/{domain}/{service}.
func (b *Bridge) parseServiceTopic(topic string) (domain, service string, ok bool) {
	rest, found := strings.CutPrefix(topic, b.prefix+"/service/")
	if !found {
		return "", "", false
	}
	domain, service, found = strings.Cut(rest, "/")
	if !found || domain == "" || service == "" || strings.Contains(service, "/") {
		return "", "", false
	}
	return domain, service, true
}

func (b *Bridge) subscribeServices() {
	topic := b.prefix + "/service/+/+"
	token := b.client.Subscribe(topic, 1, func(_ pahomqtt.Client, m pahomqtt.Message) {
		topic, payload := m.Topic(), m.Payload()
		// Service calls may block on vendor I/O; keep paho's router free.
		go func() {
			if err := b.handleServiceMessage(b.ctx, topic, payload); err != nil {
				b.logger.Warn("MQTT service call failed", zap.String("topic", topic), zap.Error(err))
			}
		}()
	})
	if token.WaitTimeout(connectTimeout) && token.Error() != nil {
		b.logger.Error("MQTT subscribe failed", zap.String("topic", topic), zap.Error(token.Error()))
	}
}

// handleServiceMessage calls the service named by topic with the JSON
// payload as data. An empty payload means no data.
func (b *Bridge) handleServiceMessage(ctx context.Context, topic string, payload []byte) error {
	domain, service, ok := b.parseServiceTopic(topic)
	if !ok {
		return fmt.Errorf("not a service topic: %s", topic)
	}

	data := map[string]any{}
	if len(strings.TrimSpace(string(payload))) > 0 {
		if err := json.Unmarshal(payload, &data); err != nil {
			return fmt.Errorf("invalid payload for %s.%s: %w", domain, service, err)
		}
	}

	b.logger.Debug("Calling service from MQTT",
		zap.String("domain", domain),
		zap.String("service", service))
	return b.hass.Services().Call(ctx, domain, service, data)
}

func (b *Bridge) handleEvent(e host.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		b.logger.Error("Failed to encode event", zap.String("event_type", e.Type), zap.Error(err))
		return
	}
	b.publish(b.eventTopic(e.Type), payload, false)
}

func (b *Bridge) clientPublish(topic string, payload []byte, retained bool) {
	if b.client == nil || !b.client.IsConnected() {
		return
	}
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			b.logger.Warn("MQTT publish failed", zap.String("topic", topic), zap.Error(token.Error()))
		}
	}()
}
