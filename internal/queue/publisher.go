package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"
)

type producer interface {
	Publish(topic string, body []byte) error
	Stop()
}

// Publisher schedules harvest runs by publishing requests to nsqd.
type Publisher struct {
	producer producer
	topic    string
	logger   *slog.Logger
	now      func() time.Time
}

// NewPublisher connects a producer to cfg.NsqdAddr.
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nsqCfg, err := cfg.nsqConfig()
	if err != nil {
		return nil, err
	}
	p, err := nsq.NewProducer(cfg.NsqdAddr, nsqCfg)
	if err != nil {
		return nil, fmt.Errorf("create nsq producer: %w", err)
	}
	p.SetLogger(slogLogger{logger}, nsqLogLevel(logger))
	return &Publisher{producer: p, topic: cfg.Topic, logger: logger, now: time.Now}, nil
}

// Enqueue publishes a harvest request for sourceID.
func (p *Publisher) Enqueue(ctx context.Context, sourceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := encodeRequest(Request{SourceID: sourceID, RequestedAt: p.now().UTC()})
	if err != nil {
		return err
	}
	if err := p.producer.Publish(p.topic, body); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	p.logger.Debug("published harvest request", "topic", p.topic, "source_id", sourceID)
	return nil
}

// Stop disconnects the producer.
func (p *Publisher) Stop() {
	p.producer.Stop()
}
