package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/segmentio/kafka-go"
)

const kafkaWriteTimeout = 2 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Envelope is the JSON document written to the event topic.
type Envelope struct {
	Name       string    `json:"name"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    Event     `json:"payload"`
}

// KafkaSink forwards bus events to a Kafka topic.
type KafkaSink struct {
	writer messageWriter
	now    func() time.Time
}

// NewKafkaSink builds a sink writing to topic on the given brokers.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, eris.New("at least one kafka broker is required")
	}
	if topic == "" {
		return nil, eris.New("kafka topic is required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &KafkaSink{writer: writer, now: time.Now}, nil
}

// Handle is a bus Handler that writes the event as one message.
func (s *KafkaSink) Handle(ctx context.Context, event Event) error {
	value, err := json.Marshal(Envelope{
		Name:       event.EventName(),
		OccurredAt: s.now().UTC(),
		Payload:    event,
	})
	if err != nil {
		return eris.Wrapf(err, "encoding %s event", event.EventName())
	}

	message := kafka.Message{Value: value}
	if keyed, ok := event.(Keyed); ok {
		message.Key = []byte(keyed.EventKey())
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), kafkaWriteTimeout)
	defer cancel()

	if err := s.writer.WriteMessages(writeCtx, message); err != nil {
		return eris.Wrapf(err, "writing %s event to kafka", event.EventName())
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	if err := s.writer.Close(); err != nil {
		return eris.Wrap(err, "closing kafka writer")
	}
	return nil
}
