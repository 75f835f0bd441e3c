package mq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKafkaProducerRequiresBrokers(t *testing.T) {
	_, err := NewKafkaProducer(KafkaConfig{})
	require.Error(t, err)
}

func TestPublishRejectsBadInput(t *testing.T) {
	producer, err := NewKafkaProducer(KafkaConfig{Brokers: []string{"127.0.0.1:1"}})
	require.NoError(t, err)

	require.Error(t, producer.Publish(context.Background(), "itsm.problem.events", nil))
	require.Error(t, producer.Publish(context.Background(), "", NewMessage([]byte("{}"))))

	require.NoError(t, producer.Close())
	require.NoError(t, producer.Close())
	err = producer.Publish(context.Background(), "itsm.problem.events", NewMessage([]byte("{}")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestToKafkaMessage(t *testing.T) {
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	message := &Message{ID: "evt-1", Body: []byte(`{"problem_id":3}`), Timestamp: at}
	message.SetHeader("event_type", "created")

	got := toKafkaMessage("itsm.problem.events", message)

	assert.Equal(t, "itsm.problem.events", got.Topic)
	assert.Equal(t, "evt-1", string(got.Key))
	assert.Equal(t, `{"problem_id":3}`, string(got.Value))
	assert.True(t, at.Equal(got.Time))

	headers := map[string]string{}
	for _, h := range got.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "created", headers["event_type"])
	assert.Equal(t, "evt-1", headers[headerID])
	assert.Equal(t, at.Format(time.RFC3339Nano), headers[headerTimestamp])

	message.Key = "3"
	assert.Equal(t, "3", string(toKafkaMessage("t", message).Key))
}

func TestMessageHeaders(t *testing.T) {
	var m Message
	_, ok := m.GetHeader("x")
	assert.False(t, ok)
	m.SetHeader("x", "1")
	value, ok := m.GetHeader("x")
	assert.True(t, ok)
	assert.Equal(t, "1", value)
}
