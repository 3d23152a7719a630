package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/form4-tracker/internal/models"
)

// JobRunner executes a queued sync job. Running a job that is no longer
// queued must be a no-op, which makes redelivered messages harmless.
type JobRunner interface {
	Run(ctx context.Context, jobID string) error
}

// JobConsumer consumes job queued events and runs the referenced jobs
type JobConsumer struct {
	reader *kafka.Reader
	runner JobRunner
}

// NewJobConsumer creates a new Kafka consumer for job events
func NewJobConsumer(brokers []string, topic, groupID string, runner JobRunner) *JobConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &JobConsumer{
		reader: reader,
		runner: runner,
	}
}

// Start begins consuming messages from Kafka
func (c *JobConsumer) Start(ctx context.Context) error {
	log.Printf("Starting Kafka consumer for topic: %s", c.reader.Config().Topic)

	for {
		select {
		case <-ctx.Done():
			log.Println("Kafka consumer shutting down...")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil // Context cancelled, normal shutdown
				}
				log.Printf("Error reading message: %v", err)
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				log.Printf("Error processing message: %v", err)
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *JobConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	log.Printf("Received message from partition %d offset %d: key=%s",
		msg.Partition, msg.Offset, string(msg.Key))

	var event models.Form4Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal job event: %w", err)
	}

	if event.EventType != models.EventJobQueued {
		log.Printf("Ignoring event type: %s", event.EventType)
		return nil
	}
	if event.Data.JobID == "" {
		return errors.New("job event has no job_id")
	}

	if err := c.runner.Run(ctx, event.Data.JobID); err != nil {
		return fmt.Errorf("failed to run job %s: %w", event.Data.JobID, err)
	}

	log.Printf("Finished job %s for %s", event.Data.JobID, event.Data.Subject)
	return nil
}

// Close closes the Kafka consumer
func (c *JobConsumer) Close() error {
	return c.reader.Close()
}
