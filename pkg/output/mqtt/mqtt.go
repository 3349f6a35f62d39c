package mqtt

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/mcp3425-to-mqtt/pkg/config"
	"github.com/ericogr/mcp3425-to-mqtt/pkg/output"
	"github.com/ericogr/mcp3425-to-mqtt/pkg/sensor"
	"go.uber.org/zap"
)

const (
	// defaults
	DefaultServer     = "tcp://localhost:1883"
	DefaultClientID   = "mcp3425-client"
	DefaultStateTopic = "mcp3425"
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	keyDevice              = "device"
	unitVolts              = "V"
	deviceClassVoltage     = "voltage"
	stateClassMeasurement  = "measurement"
	valueTemplateVoltage   = "{{ value_json.voltage }}"
	deviceModel            = "MCP3425"
	deviceManufacturer     = "Microchip"
)

// publisher is the part of mqtt.Client the output needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type MQTTOutput struct {
	client         mqtt.Client
	pub            publisher
	stateTopic     string
	discoveryTopic string
	log            *zap.Logger
}

func NewMQTT(cfg config.MQTTConfig, log *zap.Logger) (output.Output, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cfg = withDefaults(cfg)
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", zap.Error(err))
	})
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	m := newMQTTOutput(client, cfg, log)
	m.client = client
	m.publishDiscovery(cfg)
	return m, nil
}

func newMQTTOutput(pub publisher, cfg config.MQTTConfig, log *zap.Logger) *MQTTOutput {
	return &MQTTOutput{pub: pub, stateTopic: cfg.StateTopic, discoveryTopic: cfg.DiscoveryTopic, log: log}
}

// publishDiscovery publishes the retained Home Assistant discovery payload
// if a discovery topic is configured. Failures are logged only.
func (m *MQTTOutput) publishDiscovery(cfg config.MQTTConfig) {
	if m.discoveryTopic == "" {
		return
	}
	payload := discoveryPayload(discoveryName(cfg), m.stateTopic, discoveryUniqueID(cfg))
	if err := m.publishJSON(m.discoveryTopic, true, payload); err != nil {
		m.log.Error("mqtt discovery publish error", zap.String("topic", m.discoveryTopic), zap.Error(err))
	}
}

func (m *MQTTOutput) Publish(readings []sensor.Reading) error {
	for _, r := range readings {
		payload := map[string]interface{}{
			"voltage":    r.Value,
			"raw":        r.Raw,
			"code":       r.Code,
			"resolution": r.Resolution,
		}
		if err := m.publishJSON(m.stateTopic, false, payload); err != nil {
			return err
		}
	}
	return nil
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}

// PublishRaw publishes a raw payload to the given topic. The caller can set the
// retain flag which is useful for discovery messages.
func (m *MQTTOutput) PublishRaw(topic string, payload []byte, retained bool) error {
	if m.pub == nil {
		return fmt.Errorf("mqtt client not connected")
	}
	token := m.pub.Publish(topic, 0, retained, payload)
	token.Wait()
	return token.Error()
}

func (m *MQTTOutput) publishJSON(topic string, retained bool, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return m.PublishRaw(topic, b, retained)
}

func withDefaults(cfg config.MQTTConfig) config.MQTTConfig {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.StateTopic == "" {
		cfg.StateTopic = DefaultStateTopic
	}
	return cfg
}

// helper: build a human-friendly discovery name
func discoveryName(cfg config.MQTTConfig) string {
	if cfg.DiscoveryName != "" {
		return cfg.DiscoveryName
	}
	return fmt.Sprintf("MCP3425 %s", cfg.ClientID)
}

func discoveryUniqueID(cfg config.MQTTConfig) string {
	if cfg.DiscoveryUniqueID != "" {
		return cfg.DiscoveryUniqueID
	}
	return cfg.ClientID
}

func discoveryPayload(name, stateTopic, uniqueID string) map[string]interface{} {
	payload := map[string]interface{}{
		keyName:                name,
		keyStateTopic:          stateTopic,
		keyUnitOfMeasurement:   unitVolts,
		keyDeviceClass:         deviceClassVoltage,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       valueTemplateVoltage,
		keyJSONAttributesTopic: stateTopic,
	}
	if uniqueID != "" {
		payload[keyUniqueID] = uniqueID
		payload[keyDevice] = map[string]interface{}{
			"identifiers":  []string{uniqueID},
			"name":         name,
			"model":        deviceModel,
			"manufacturer": deviceManufacturer,
		}
	}
	return payload
}
