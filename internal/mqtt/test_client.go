package mqtt

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// PublishedMessage is a message recorded by TestClient.
type PublishedMessage struct {
	Topic    string
	Qos      byte
	Retained bool
	Payload  string
}

// TestClient is an in-memory paho client that records publications.
type TestClient struct {
	mu         sync.Mutex
	connected  bool
	ConnectErr error
	PublishErr error
	Messages   []PublishedMessage
}

func NewTestClient() *TestClient {
	return &TestClient{}
}

// Last returns the last message published on topic.
func (c *TestClient) Last(topic string) (PublishedMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Topic == topic {
			return c.Messages[i], true
		}
	}
	return PublishedMessage{}, false
}

func (c *TestClient) Published() []PublishedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]PublishedMessage(nil), c.Messages...)
}

func (c *TestClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *TestClient) IsConnectionOpen() bool {
	return c.IsConnected()
}

func (c *TestClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = c.ConnectErr == nil
	return doneToken{err: c.ConnectErr}
}

func (c *TestClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *TestClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	var p string
	switch v := payload.(type) {
	case string:
		p = v
	case []byte:
		p = string(v)
	}
	c.Messages = append(c.Messages, PublishedMessage{Topic: topic, Qos: qos, Retained: retained, Payload: p})
	return doneToken{err: c.PublishErr}
}

func (c *TestClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return doneToken{}
}

func (c *TestClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return doneToken{}
}

func (c *TestClient) Unsubscribe(topics ...string) mqtt.Token {
	return doneToken{}
}

func (c *TestClient) AddRoute(topic string, callback mqtt.MessageHandler) {
}

func (c *TestClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool {
	return true
}

func (t doneToken) WaitTimeout(time.Duration) bool {
	return true
}

func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t doneToken) Error() error {
	return t.err
}

var _ mqtt.Client = (*TestClient)(nil)
