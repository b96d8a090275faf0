package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func sample() Sighting {
	rt := 42.5
	return Sighting{
		CycleID:            "c-1",
		IPAddress:          "10.0.0.5",
		Port:               3001,
		Status:             "RUNNING",
		RunningTimeMinutes: &rt,
		JobName:            "bracket",
		Filename:           "bracket.nc",
		Inserted:           true,
		ObservedAt:         time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublishKeysByAddress(t *testing.T) {
	w := &recordingWriter{}
	p := &Kafka{writer: w}

	require.NoError(t, p.Publish(context.Background(), sample()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "10.0.0.5", string(w.msgs[0].Key))

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "RUNNING", got["status"])
	assert.Equal(t, 42.5, got["running_time_minutes"])
	assert.Nil(t, got["balance_time_minutes"])
	assert.Equal(t, true, got["inserted"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublishError(t *testing.T) {
	p := &Kafka{writer: &recordingWriter{err: errors.New("broker down")}}
	err := p.Publish(context.Background(), sample())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "10.0.0.5")
}

func TestNewKafkaRequiresBrokers(t *testing.T) {
	_, err := NewKafka(nil, "")
	assert.Error(t, err)

	p, err := NewKafka([]string{"127.0.0.1:9092"}, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultSubject, p.writer.(*kafka.Writer).Topic)
}

func TestConnectNATSUnreachable(t *testing.T) {
	_, err := ConnectNATS("nats://127.0.0.1:1", "", nil)
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), sample()))
	assert.NoError(t, p.Close())
}
