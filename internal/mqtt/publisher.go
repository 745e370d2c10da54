package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vesperrec/vesper-recorder/internal/errors"
	"github.com/vesperrec/vesper-recorder/internal/logger"
	"github.com/vesperrec/vesper-recorder/internal/status"
)

// SnapshotSource supplies the status to publish.
type SnapshotSource interface {
	Snapshot() status.Snapshot
}

// Publisher periodically publishes recorder status.
type Publisher struct {
	client   Client
	source   SnapshotSource
	topic    string
	interval time.Duration
	log      logger.Logger

	connected bool
}

// NewPublisher returns a publisher that sends a status message to topic
// every interval.
func NewPublisher(c Client, source SnapshotSource, topic string, interval time.Duration, log logger.Logger) (*Publisher, error) {
	if c == nil || source == nil {
		return nil, errors.Newf("mqtt publisher needs a client and a status source").
			Component(componentMQTT).
			Category(errors.CategoryValidation).
			Build()
	}
	if topic == "" || interval <= 0 {
		return nil, errors.Newf("invalid mqtt publisher settings: topic %q, interval %v", topic, interval).
			Component(componentMQTT).
			Category(errors.CategoryValidation).
			Build()
	}
	if log == nil {
		log = logger.Global().Module(componentMQTT)
	}
	return &Publisher{client: c, source: source, topic: topic, interval: interval, log: log}, nil
}

// Run publishes immediately and then every interval until ctx is done. An
// unreachable broker is retried on each tick and never ends Run.
func (p *Publisher) Run(ctx context.Context) error {
	defer p.client.Disconnect()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.publish(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Publisher) publish(ctx context.Context) {
	if !p.connected {
		if err := p.client.Connect(ctx); err != nil {
			if ctx.Err() == nil {
				p.log.Warn("connecting to MQTT broker failed", logger.Error(err))
			}
			return
		}
		p.connected = true
	}
	if !p.client.IsConnected() {
		// paho is reconnecting
		p.log.Debug("skipping status publish while disconnected")
		return
	}

	payload, err := json.Marshal(NewStatusDTO(p.source.Snapshot()))
	if err != nil {
		p.log.Error("encoding status message failed", logger.Error(err))
		return
	}
	if err := p.client.Publish(ctx, p.topic, payload); err != nil && ctx.Err() == nil {
		p.log.Warn("publishing status failed", logger.String("topic", p.topic), logger.Error(err))
	}
}
