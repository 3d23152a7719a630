package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/form4-tracker/internal/models"
)

// MockRunner implements JobRunner and records the jobs it ran. Like the real
// job service it runs each job at most once.
type MockRunner struct {
	mu   sync.Mutex
	ran  map[string]bool
	err  error
	Runs []string

	// Track method calls for verification
	RunCalls int
}

func NewMockRunner() *MockRunner {
	return &MockRunner{ran: make(map[string]bool)}
}

func (m *MockRunner) Run(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RunCalls++
	if m.err != nil {
		return m.err
	}
	if m.ran[jobID] {
		return nil
	}
	m.ran[jobID] = true
	m.Runs = append(m.Runs, jobID)
	return nil
}

// Helper function to build a Kafka message carrying an event
func createTestMessage(t *testing.T, eventType, jobID, subject string) kafka.Message {
	t.Helper()
	event := models.Form4Event{
		EventType:     eventType,
		Source:        EventSource,
		SchemaVersion: models.EventSchemaVersion,
		Timestamp:     time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC),
		Data:          models.Form4EventData{JobID: jobID, Subject: subject},
	}
	msg, err := encodeEvent(subject, event)
	require.NoError(t, err)
	return msg
}

func TestProcessMessage_RunsQueuedJob(t *testing.T) {
	runner := NewMockRunner()
	consumer := &JobConsumer{runner: runner}

	err := consumer.processMessage(context.Background(), createTestMessage(t, models.EventJobQueued, "job-1", "AAPL"))
	require.NoError(t, err)

	assert.Equal(t, 1, runner.RunCalls)
	assert.Equal(t, []string{"job-1"}, runner.Runs)
}

func TestProcessMessage_RedeliveryIsHarmless(t *testing.T) {
	runner := NewMockRunner()
	consumer := &JobConsumer{runner: runner}
	msg := createTestMessage(t, models.EventJobQueued, "job-1", "AAPL")

	require.NoError(t, consumer.processMessage(context.Background(), msg))
	require.NoError(t, consumer.processMessage(context.Background(), msg))

	assert.Equal(t, 2, runner.RunCalls)
	assert.Len(t, runner.Runs, 1, "a redelivered job must only run once")
}

func TestProcessMessage_IgnoresOtherEvents(t *testing.T) {
	runner := NewMockRunner()
	consumer := &JobConsumer{runner: runner}

	err := consumer.processMessage(context.Background(), createTestMessage(t, models.EventSyncCompleted, "job-1", "AAPL"))
	require.NoError(t, err)

	assert.Equal(t, 0, runner.RunCalls)
}

func TestProcessMessage_Errors(t *testing.T) {
	t.Run("malformed payload", func(t *testing.T) {
		runner := NewMockRunner()
		consumer := &JobConsumer{runner: runner}

		err := consumer.processMessage(context.Background(), kafka.Message{Value: []byte("{not json")})
		assert.Error(t, err)
		assert.Equal(t, 0, runner.RunCalls)
	})

	t.Run("missing job id", func(t *testing.T) {
		runner := NewMockRunner()
		consumer := &JobConsumer{runner: runner}

		err := consumer.processMessage(context.Background(), createTestMessage(t, models.EventJobQueued, "", "AAPL"))
		assert.Error(t, err)
		assert.Equal(t, 0, runner.RunCalls)
	})

	t.Run("runner failure is returned", func(t *testing.T) {
		runner := NewMockRunner()
		runner.err = errors.New("edgar down")
		consumer := &JobConsumer{runner: runner}

		err := consumer.processMessage(context.Background(), createTestMessage(t, models.EventJobQueued, "job-9", "MSFT"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "job-9")
		assert.Contains(t, err.Error(), "edgar down")
	})
}

func TestProducer_EventEnvelope(t *testing.T) {
	fixed := time.Date(2024, 5, 2, 9, 30, 0, 0, time.FixedZone("EST", -5*3600))
	p := &Producer{now: func() time.Time { return fixed }}

	event := p.newEvent(models.EventSyncCompleted, models.Form4EventData{
		JobID:           "job-1",
		Subject:         "AAPL",
		Mode:            "delta",
		Transactions:    12,
		NewTransactions: 3,
	})
	msg, err := encodeEvent("AAPL", event)
	require.NoError(t, err)

	assert.Equal(t, "AAPL", string(msg.Key))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, models.EventSyncCompleted, decoded["event_type"])
	assert.Equal(t, EventSource, decoded["source"])
	assert.Equal(t, models.EventSchemaVersion, decoded["schema_version"])
	assert.Equal(t, "2024-05-02T14:30:00Z", decoded["timestamp"])

	data, ok := decoded["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "job-1", data["job_id"])
	assert.Equal(t, "AAPL", data["subject"])
	assert.Equal(t, "delta", data["mode"])
	assert.Equal(t, float64(12), data["transactions"])
	assert.Equal(t, float64(3), data["new_transactions"])
}
