package status

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	DefaultTopicPrefix = "framecast"
	publishTimeout     = 2 * time.Second
	queueSize          = 64
)

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTEmitter publishes events as retained JSON messages on
// {prefix}/{clientId}/{stream}/state. Events are queued and published from
// a background goroutine; when the queue is full new events are dropped.
type MQTTEmitter struct {
	client  mqtt.Client
	pub     publisher
	prefix  string
	queue   chan Event
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// ConnectMQTT connects to broker (host:port or a full URL) and returns an
// emitter. The client reconnects on its own after the first connection.
func ConnectMQTT(broker, clientID, prefix string) (*MQTTEmitter, error) {
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("framecast-" + clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		slog.Info("status: mqtt connected", "broker", broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("status: mqtt connection lost, will reconnect", "broker", broker, "err", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		client.Disconnect(0)
		return nil, fmt.Errorf("status: mqtt connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("status: mqtt connect: %w", err)
	}
	e := newMQTTEmitter(client, prefix)
	e.client = client
	return e, nil
}

func newMQTTEmitter(pub publisher, prefix string) *MQTTEmitter {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	e := &MQTTEmitter{
		pub:    pub,
		prefix: strings.TrimRight(prefix, "/"),
		queue:  make(chan Event, queueSize),
		done:   make(chan struct{}),
	}
	go e.run()
	return e
}

// Topic returns the state topic for one stream.
func Topic(prefix, clientID, stream string) string {
	return prefix + "/" + clientID + "/" + stream + "/state"
}

func (e *MQTTEmitter) Emit(ev Event) {
	select {
	case e.queue <- ev:
	default:
		e.dropped.Add(1)
	}
}

func (e *MQTTEmitter) run() {
	defer close(e.done)
	for ev := range e.queue {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		topic := Topic(e.prefix, ev.ClientID, ev.Stream)
		token := e.pub.Publish(topic, 1, true, payload)
		if !token.WaitTimeout(publishTimeout) {
			e.failed.Add(1)
			slog.Warn("status: mqtt publish timed out", "topic", topic)
			continue
		}
		if err := token.Error(); err != nil {
			e.failed.Add(1)
			slog.Warn("status: mqtt publish failed", "topic", topic, "err", err)
			continue
		}
		slog.Debug("status: published", "topic", topic, "state", ev.State)
	}
}

// Close flushes queued events and disconnects.
func (e *MQTTEmitter) Close() {
	e.once.Do(func() {
		close(e.queue)
		<-e.done
		if e.client != nil {
			e.client.Disconnect(250)
		}
	})
}
