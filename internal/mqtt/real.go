package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/mdouchement/logger"
)

// DefaultBufferSize bounds the messages kept while the broker is unreachable.
const DefaultBufferSize = 1000

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string // empty derives fan-controller-<uuid>
	Prefix     string
	BufferSize int
	Log        logger.Logger
	// OnCommand receives <prefix>/<id>/set messages. Nil disables the subscription.
	OnCommand CommandHandler
}

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client    paho.Client
	topics    Topics
	log       logger.Logger
	onCommand CommandHandler

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool
	everUp    bool
}

// ClientID returns a unique client id for this process.
func ClientID() string {
	return "fan-controller-" + uuid.NewString()[:8]
}

// NewRealPublisher creates a publisher connected to the given broker. The
// client keeps retrying in the background, so a broker that is down at
// start-up only delays delivery: messages are buffered meanwhile.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.ClientID == "" {
		o.ClientID = ClientID()
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}

	p := &RealPublisher{
		topics:    Topics{Prefix: o.Prefix},
		log:       o.Log,
		onCommand: o.OnCommand,
		buf:       newRingBuffer(o.BufferSize, o.Log),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetOrderMatters(false).
		SetWill(p.topics.System(), string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		p.logf("mqtt: broker %s not reachable yet, retrying in background", o.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

func (p *RealPublisher) logf(format string, args ...any) {
	if p.log != nil {
		p.log.Infof(format, args...)
	}
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := p.everUp
	p.everUp = true
	p.connected = true
	pending := p.buf.drainAll()
	p.mu.Unlock()

	p.logf("mqtt: connected")

	if p.onCommand != nil {
		c.Subscribe(p.topics.SetFilter(), 1, p.handleCommand)
	}

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		c.Publish(p.topics.System(), 1, false, payload)
	}

	for _, m := range pending {
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}
	if len(pending) > 0 {
		p.logf("mqtt: replayed %d buffered messages", len(pending))
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()

	if p.log != nil {
		p.log.WithError(err).Warnf("mqtt: connection lost")
	}
}

func (p *RealPublisher) handleCommand(_ paho.Client, m paho.Message) {
	id, ok := p.topics.Channel(m.Topic())
	if !ok {
		return
	}
	percent, err := ParseCommand(m.Payload())
	if err != nil {
		if p.log != nil {
			p.log.WithError(err).Warnf("mqtt: %s: dropped command", m.Topic())
		}
		return
	}
	p.onCommand(id, percent)
}

// publish sends now when connected and buffers otherwise.
func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	msg := bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained}

	p.mu.Lock()
	if !p.connected {
		if !p.buf.coalesce(msg) {
			p.buf.push(msg)
		}
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		p.mu.Lock()
		p.buf.push(msg)
		p.mu.Unlock()
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishState sends a fan measurement, retained at QoS 0.
func (p *RealPublisher) PublishState(event StateEvent) error {
	payload, err := FormatStatePayload(event)
	if err != nil {
		return fmt.Errorf("format state payload: %w", err)
	}
	return p.publish(p.topics.State(event.Fan.ID), 0, true, payload)
}

// PublishSystem sends a system lifecycle event at QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(p.topics.System(), 1, event.Retained, payload)
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for the broker.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
