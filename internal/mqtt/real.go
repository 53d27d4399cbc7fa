package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	// bufferSize is the number of messages held while disconnected.
	bufferSize = 100

	publishTimeout = 5 * time.Second
)

// transport is the part of paho.Client the publisher uses.
type transport interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the broker is unreachable are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	out    transport
	now    func() time.Time

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool // at least one connection has been made
	replaying bool // buffer is being drained after a connect
}

// NewRealPublisher creates a publisher for the given broker. Connection is
// attempted in the background and retried until it succeeds; the broker
// publishes a retained SHUTDOWN/MQTT_DISCONNECT if the process vanishes.
func NewRealPublisher(broker, clientID string) *RealPublisher {
	p := newPublisher(nil)

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: p.now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.handleConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	p.out = p.client

	token := p.client.Connect()
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("mqtt: connect to %s: %v", broker, err)
		}
	}()

	return p
}

func newPublisher(out transport) *RealPublisher {
	return &RealPublisher{
		out: out,
		now: time.Now,
		buf: newRingBuffer(bufferSize),
	}
}

// handleConnect runs on every successful (re)connection. New messages keep
// going to the buffer until it has been drained, so replayed messages are
// never overtaken by ones published during the replay.
func (p *RealPublisher) handleConnect() {
	p.mu.Lock()
	reconnect := p.connected
	p.connected = true
	p.replaying = true
	p.mu.Unlock()

	if !reconnect {
		log.Printf("mqtt: connected")
	} else {
		log.Printf("mqtt: reconnected")
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
		p.send(TopicSystem, 1, false, payload)
	}

	for {
		p.mu.Lock()
		if p.buf.len() == 0 || !p.out.IsConnectionOpen() {
			// anything left waits for the next connect
			p.replaying = false
			p.mu.Unlock()
			return
		}
		msgs, dropped := p.buf.drain()
		p.mu.Unlock()

		log.Printf("mqtt: replaying %d buffered messages (%d dropped)", len(msgs), dropped)
		for _, m := range msgs {
			p.send(m.topic, m.qos, m.retained, m.payload)
		}
	}
}

// publish sends now if connected and nothing is queued ahead, otherwise
// buffers.
func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) paho.Token {
	p.mu.Lock()
	if p.replaying || !p.out.IsConnectionOpen() {
		p.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.send(topic, qos, retained, payload)
}

// send publishes without blocking; the outcome is logged.
func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte) paho.Token {
	token := p.out.Publish(topic, qos, retained, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			log.Printf("mqtt: publish to %s timed out", topic)
			return
		}
		if err := token.Error(); err != nil {
			log.Printf("mqtt: publish to %s: %v", topic, err)
		}
	}()
	return token
}

// Publish sends a state transition. It does not wait for delivery.
func (p *RealPublisher) Publish(event StateEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 1: transitions are the record of what the controller did
	p.publish(TopicEvents, 1, false, payload)
	return nil
}

// PublishLog sends an event-log line. It does not wait for delivery.
func (p *RealPublisher) PublishLog(line LogLine) error {
	payload, err := FormatLogPayload(line)
	if err != nil {
		return fmt.Errorf("format log payload: %w", err)
	}
	p.publish(TopicLog, 0, false, payload)
	return nil
}

// PublishSystem sends a system lifecycle event and waits briefly for delivery,
// so a SHUTDOWN reaches the broker before Close disconnects.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	token := p.publish(TopicSystem, 1, event.Retained, payload)
	if token == nil {
		return nil
	}
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish system timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// IsConnected reports whether the broker connection is currently open.
func (p *RealPublisher) IsConnected() bool {
	return p.out.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	if p.client != nil {
		p.client.Disconnect(1000) // 1 second timeout
	}
	return nil
}
