package publisher

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/openpv/pvharvest/internal/config"
	"github.com/openpv/pvharvest/pkg/models"
)

// Publisher pushes downloaded readings to an MQTT broker, one topic
// per system.
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
}

// New connects to the configured MQTT broker
func New(cfg config.MQTTConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("MQTT publishing is not enabled in config")
	}
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required when enabled")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID("pvharvest")
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}

	return &Publisher{
		client:      client,
		topicPrefix: cfg.GetTopicPrefix(),
	}, nil
}

// Publish sends one reading to <prefix>/<system_id>/status as JSON,
// retained so subscribers joining later still see the latest value.
func (p *Publisher) Publish(obs models.Observation) error {
	payload, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("encoding reading: %w", err)
	}

	topic := fmt.Sprintf("%s/%d/status", p.topicPrefix, obs.SystemID)
	if token := p.client.Publish(topic, 1, true, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	return nil
}

// PublishAll publishes a batch of readings in timestamp order.
func (p *Publisher) PublishAll(obs []models.Observation) error {
	for _, o := range obs {
		if err := p.Publish(o); err != nil {
			return err
		}
	}
	return nil
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
