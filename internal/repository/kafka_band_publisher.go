package repository

import (
	"context"
	"fmt"
	"time"

	"PriceBand/internal/domain/models"
	domrepo "PriceBand/internal/domain/repository"
	pkgkafka "PriceBand/pkg/kafka"
	applogger "PriceBand/pkg/logger"
)

// BandProducer is the part of pkg/kafka.Producer the publisher uses.
type BandProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// BandEvent is the Kafka message value for one instrument's latest band.
type BandEvent struct {
	Type        string            `json:"type"`
	PublishedAt time.Time         `json:"published_at"`
	Row         models.SummaryRow `json:"row"`
}

const bandEventType = "band.update"

// KafkaBandPublisher streams summary rows keyed by symbol so that every
// instrument's updates land on one partition in order.
type KafkaBandPublisher struct {
	producer BandProducer
	topic    string
	l        *applogger.Logger
	now      func() time.Time
}

var _ domrepo.BandPublisher = (*KafkaBandPublisher)(nil)

func NewKafkaBandPublisher(p BandProducer, topic string, l *applogger.Logger) *KafkaBandPublisher {
	if l == nil {
		l = applogger.Nop()
	}
	return &KafkaBandPublisher{producer: p, topic: topic, l: l, now: time.Now}
}

func (p *KafkaBandPublisher) PublishRows(ctx context.Context, rows []models.SummaryRow) error {
	if len(rows) == 0 {
		return nil
	}
	at := p.now().UTC()
	msgs := make([]pkgkafka.Message, len(rows))
	for i, r := range rows {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(r.Symbol),
			Value: BandEvent{Type: bandEventType, PublishedAt: at, Row: r},
			Headers: map[string]string{
				"content-type": "application/json",
				"event":        bandEventType,
			},
		}
	}
	if err := p.producer.PublishBatch(ctx, p.topic, msgs); err != nil {
		p.l.Error("kafka publish bands failed",
			applogger.String("topic", p.topic),
			applogger.Int("rows", len(rows)),
			applogger.Error(err))
		return fmt.Errorf("publish bands: %w", err)
	}
	p.l.Debug("kafka publish bands ok",
		applogger.String("topic", p.topic),
		applogger.Int("rows", len(rows)))
	return nil
}

func (p *KafkaBandPublisher) Close() error {
	return p.producer.Close()
}
