package mqttpub

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/iglogger/internal/config"
	"github.com/berfenger/iglogger/internal/core/domain"
	"github.com/berfenger/iglogger/internal/core/port"
	"github.com/berfenger/iglogger/internal/events"
	"github.com/berfenger/iglogger/internal/mqtt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	connectTimeout   = 10 * time.Second
	publishTimeout   = 5 * time.Second
	discoveryTimeout = 1 * time.Second
)

type rawMessage struct {
	topic   string
	message string
	retain  bool
}

// Publisher sends sample sets to an MQTT broker as sensor states, with optional Home Assistant discovery.
// Publications complete asynchronously; failures are only logged.
type Publisher struct {
	config   config.MQTTConfig
	client   *mqtt.MQTTClient
	logger   *zap.Logger
	mu       sync.Mutex
	failures int

	discovered *domain.DeviceIdentity
}

func NewPublisher(cfg *config.Config, logger *zap.Logger) *Publisher {
	p := &Publisher{
		config: cfg.MQTT,
		logger: logger.With(zap.String("component", "mqtt")),
	}
	p.client = mqtt.CreateMQTTClient(cfg, mqtt.OptsFromConfig(cfg), func(_ pahomqtt.Client) {
		// retained state may have been replaced by the last will while disconnected
		p.publishRaw(rawMessage{topic: p.client.BridgeStateTopic(), message: mqtt.MQTT_PAYLOAD_ONLINE, retain: true})
	}, func(_ pahomqtt.Client, err error) {
		p.logger.Warn("mqtt connection lost", zap.Error(err))
	})
	return p
}

// NewPublisherWithClient builds a publisher over an existing client, used by tests.
func NewPublisherWithClient(cfg config.MQTTConfig, client pahomqtt.Client, logger *zap.Logger) *Publisher {
	return &Publisher{
		config: cfg,
		client: mqtt.NewMQTTClient(client, cfg),
		logger: logger.With(zap.String("component", "mqtt")),
	}
}

// Start connects to the broker and announces the bridge.
func (p *Publisher) Start() error {
	done := make(chan error, 1)
	p.client.Connect(func(err error) {
		done <- err
	}, connectTimeout)
	if err := <-done; err != nil {
		return fmt.Errorf("mqtt: connect: %w", err)
	}
	p.logger.Info("mqtt connected")

	p.publishEvent(events.BridgeStateUpdateEvent{Value: true})
	if p.config.HADiscoveryEnable {
		return p.PublishHomeAssistantDiscovery(events.BridgeSensors(events.BridgeDevice(p.config.BaseTopic)))
	}
	return nil
}

func (p *Publisher) StartPeriod(period domain.Period) error {
	return p.maybeDiscover(period.Identity)
}

func (p *Publisher) Publish(sample domain.SampleSet) error {
	if err := p.maybeDiscover(sample.Identity); err != nil {
		return err
	}
	for _, ev := range events.SampleSetToUpdateEvents(sample) {
		p.publishEvent(ev)
	}
	return nil
}

func (p *Publisher) Idle() error {
	for _, ev := range events.IdleUpdateEvents() {
		p.publishEvent(ev)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.logger.Debug("mqtt: disconnect")
	p.publishRaw(rawMessage{topic: p.client.BridgeStateTopic(), message: mqtt.MQTT_PAYLOAD_OFFLINE, retain: true})
	p.client.Disconnect(500 * time.Millisecond)
	return nil
}

// Failures returns the number of publications that failed.
func (p *Publisher) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

func (p *Publisher) maybeDiscover(identity domain.DeviceIdentity) error {
	if !p.config.HADiscoveryEnable || identity.ModelName == "" {
		return nil
	}
	if p.discovered != nil && *p.discovered == identity {
		return nil
	}
	device := events.InverterDevice(p.config.BaseTopic, identity)
	if err := p.PublishHomeAssistantDiscovery(events.InverterSensors(device)); err != nil {
		return err
	}
	p.discovered = &identity
	return nil
}

func (p *Publisher) PublishHomeAssistantDiscovery(sensors []events.GenericSensor) error {
	for i := range sensors {
		msg := mqtt.GenericSensorToHADiscoveryMessage(p.client, sensors[i])
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		topic := p.client.HADiscoverySensorTopic(sensors[i])
		p.client.Publish(topic, payload, 0, true, func(error) {}, discoveryTimeout)
	}
	p.logger.Debug("mqtt@publish: discovery published", zap.Int("sensors", len(sensors)))
	return nil
}

func (p *Publisher) publishEvent(event any) {
	if msg := p.event2MQTTMessage(event); msg != nil {
		p.publishRaw(*msg)
	}
}

func (p *Publisher) publishRaw(msg rawMessage) {
	p.logger.Sugar().Debugf("mqtt@publish: sensor publish %s => %s", msg.topic, msg.message)
	p.client.Publish(msg.topic, msg.message, 1, msg.retain, func(err error) {
		if err != nil {
			p.mu.Lock()
			p.failures++
			p.mu.Unlock()
			p.logger.Error("mqtt@publishing could not publish a message", zap.String("topic", msg.topic), zap.Error(err))
		}
	}, publishTimeout)
}

func (p *Publisher) event2MQTTMessage(event any) *rawMessage {
	switch msg := event.(type) {
	case events.SensorUpdateEvent:
		return &rawMessage{
			topic:   p.client.SensorStateTopic(msg.Id),
			message: fmt.Sprintf(fmt.Sprintf("%%.%df", msg.Decimals), msg.Value),
		}
	case events.TextSensorUpdateEvent:
		return &rawMessage{
			topic:   p.client.SensorStateTopic(msg.Id),
			message: msg.Value,
			retain:  true,
		}
	case events.BridgeStateUpdateEvent:
		var stringMessage string
		if msg.Value {
			stringMessage = mqtt.MQTT_PAYLOAD_ONLINE
		} else {
			stringMessage = mqtt.MQTT_PAYLOAD_OFFLINE
		}
		return &rawMessage{
			topic:   p.client.BridgeStateTopic(),
			message: stringMessage,
			retain:  true,
		}
	default:
		return nil
	}
}

// ensure interface compliance
var _ port.TelemetrySink = (*Publisher)(nil)
