package events

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes sightings to a topic, keyed by machine address so every
// sighting of a machine lands on the same partition.
type Kafka struct {
	writer messageWriter
}

// NewKafka creates a publisher writing to topic on brokers.
// An empty topic uses DefaultSubject.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if topic == "" {
		topic = DefaultSubject
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Kafka{writer: writer}, nil
}

func (p *Kafka) Publish(ctx context.Context, s Sighting) error {
	data, err := s.encode()
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(s.IPAddress),
		Value: data,
		Time:  s.ObservedAt,
	})
	if err != nil {
		return fmt.Errorf("kafka: failed to publish sighting for %s: %w", s.IPAddress, err)
	}
	return nil
}

func (p *Kafka) Close() error {
	return p.writer.Close()
}
