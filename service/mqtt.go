package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Comcast/axon/config"
	"github.com/Comcast/axon/storage"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTPublisher publishes finished runs as JSON.
type MQTTPublisher struct {
	Client  mqtt.Client
	Topic   string
	QoS     byte
	Quiesce uint

	// PublishTimeout bounds each publish.
	PublishTimeout time.Duration
}

func NewMQTTPublisher(cfg *config.MQTT) *MQTTPublisher {
	mqtt.ERROR = log.New(os.Stderr, "mqtt.error ", 0)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientId)
	opts.SetKeepAlive(10 * time.Second)
	opts.AutoReconnect = true
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
	}

	quiesce := cfg.Quiesce
	if quiesce == 0 {
		quiesce = 100
	}

	return &MQTTPublisher{
		Client:         mqtt.NewClient(opts),
		Topic:          cfg.Topic,
		QoS:            cfg.QoS,
		Quiesce:        quiesce,
		PublishTimeout: 5 * time.Second,
	}
}

// Start connects to the broker.
func (p *MQTTPublisher) Start(ctx context.Context) error {
	log.Printf("Attempting to connect to broker")
	if token := p.Client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("Connected to broker")
	return nil
}

// Publish sends one run to the topic.
func (p *MQTTPublisher) Publish(r *storage.Run) error {
	js, err := json.Marshal(r)
	if err != nil {
		return err
	}
	token := p.Client.Publish(p.Topic, p.QoS, false, js)
	if !token.WaitTimeout(p.PublishTimeout) {
		return fmt.Errorf("publish to %s timed out", p.Topic)
	}
	return token.Error()
}

// Run publishes every run from the channel until the context is
// done or the channel is closed.
func (p *MQTTPublisher) Run(ctx context.Context, runs <-chan *storage.Run) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-runs:
			if !ok {
				return
			}
			if err := p.Publish(r); err != nil {
				log.Printf("ERROR MQTT publish %s: %v", r.Id, err)
			}
		}
	}
}

// Stop disconnects.
func (p *MQTTPublisher) Stop() {
	log.Printf("Disconnecting")
	p.Client.Disconnect(p.Quiesce)
}
