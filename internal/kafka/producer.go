package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/form4-tracker/internal/models"
)

// EventSource is stamped on every event this service publishes
const EventSource = "form4-tracker"

// Producer handles publishing events to Kafka. Job requests go to the jobs
// topic, sync outcomes to the events topic.
type Producer struct {
	jobs   *kafka.Writer
	events *kafka.Writer
	now    func() time.Time
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, jobsTopic, eventsTopic string) *Producer {
	return &Producer{
		jobs:   newWriter(brokers, jobsTopic),
		events: newWriter(brokers, eventsTopic),
		now:    time.Now,
	}
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// PublishJobQueued publishes a job queued event for the job consumer
func (p *Producer) PublishJobQueued(ctx context.Context, job *models.SyncJob) error {
	event := p.newEvent(models.EventJobQueued, models.Form4EventData{
		JobID:   job.ID,
		Subject: job.Ticker,
	})
	return p.publish(ctx, p.jobs, job.Ticker, event)
}

// PublishSyncCompleted publishes the outcome of a finished sync job
func (p *Producer) PublishSyncCompleted(ctx context.Context, jobID, subject string, result models.SyncJobResult) error {
	event := p.newEvent(models.EventSyncCompleted, models.Form4EventData{
		JobID:           jobID,
		Subject:         subject,
		Mode:            result.Mode,
		Transactions:    result.Transactions,
		NewTransactions: result.NewTransactions,
	})
	return p.publish(ctx, p.events, subject, event)
}

func (p *Producer) newEvent(eventType string, data models.Form4EventData) models.Form4Event {
	return models.Form4Event{
		EventType:     eventType,
		Source:        EventSource,
		SchemaVersion: models.EventSchemaVersion,
		Timestamp:     p.now().UTC(),
		Data:          data,
	}
}

func (p *Producer) publish(ctx context.Context, writer *kafka.Writer, key string, event models.Form4Event) error {
	msg, err := encodeEvent(key, event)
	if err != nil {
		return err
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

func encodeEvent(key string, event models.Form4Event) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: data,
	}, nil
}

// Close closes both Kafka writers
func (p *Producer) Close() error {
	jobsErr := p.jobs.Close()
	if err := p.events.Close(); err != nil {
		return err
	}
	return jobsErr
}
