// Package kafka fans ingested contacts and spots out to Kafka topics.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rogercaminal/hamcontestlog/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes contacts and spots as JSON messages keyed by id, so
// compacted topics keep one record per contact or spot.
// It implements pipeline.Publisher.
type Publisher struct {
	writer        messageWriter
	contactsTopic string
	spotsTopic    string
	batchSize     int
	clock         clockwork.Clock
	logger        *slog.Logger
}

// NewPublisher creates a producer for the given brokers. Messages carry
// their own topic, so the underlying writer has none.
func NewPublisher(brokers []string, contactsTopic, spotsTopic string, batchSize int, flushInterval time.Duration, clock clockwork.Clock, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		BatchSize:              max(batchSize, 1),
		BatchTimeout:           flushInterval,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, contactsTopic, spotsTopic, batchSize, clock, logger)
}

func newPublisher(w messageWriter, contactsTopic, spotsTopic string, batchSize int, clock clockwork.Clock, logger *slog.Logger) *Publisher {
	return &Publisher{
		writer:        w,
		contactsTopic: contactsTopic,
		spotsTopic:    spotsTopic,
		batchSize:     max(batchSize, 1),
		clock:         clock,
		logger:        logger,
	}
}

// PublishLog sends every contact of log to the contacts topic.
func (p *Publisher) PublishLog(ctx context.Context, edition string, log domain.ParsedLog) error {
	now := p.clock.Now()
	msgs := make([]kafkago.Message, 0, len(log.Contacts))
	for _, c := range log.Contacts {
		msg, err := serializeContact(p.contactsTopic, edition, c, now)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return p.write(ctx, msgs)
}

// PublishSpots sends spots to the spots topic.
func (p *Publisher) PublishSpots(ctx context.Context, spots []domain.Spot) error {
	now := p.clock.Now()
	msgs := make([]kafkago.Message, 0, len(spots))
	for _, s := range spots {
		msg, err := serializeSpot(p.spotsTopic, s, now)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return p.write(ctx, msgs)
}

func (p *Publisher) write(ctx context.Context, msgs []kafkago.Message) error {
	for start := 0; start < len(msgs); start += p.batchSize {
		end := min(start+p.batchSize, len(msgs))
		if err := p.writer.WriteMessages(ctx, msgs[start:end]...); err != nil {
			return fmt.Errorf("publish %d messages: %w", end-start, err)
		}
	}
	if len(msgs) > 0 {
		p.logger.Debug("published", "messages", len(msgs), "topic", msgs[0].Topic)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func serializeContact(topic, edition string, c domain.Contact, now time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize contact: %w", err)
	}
	return kafkago.Message{
		Topic: topic,
		Key:   []byte(edition + "/" + c.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "record_type", Value: []byte("contact")},
			{Key: "edition", Value: []byte(edition)},
			{Key: "published_at", Value: []byte(now.UTC().Format(time.RFC3339))},
		},
	}, nil
}

func serializeSpot(topic string, s domain.Spot, now time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize spot: %w", err)
	}
	return kafkago.Message{
		Topic: topic,
		Key:   []byte(s.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "record_type", Value: []byte("spot")},
			{Key: "published_at", Value: []byte(now.UTC().Format(time.RFC3339))},
		},
	}, nil
}
