package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applog "wikilinks/app/internal/log"
)

type testEvent struct {
	Term string `json:"term"`
}

func (testEvent) EventName() string  { return "test.happened" }
func (e testEvent) EventKey() string { return e.Term }

type otherEvent struct{}

func (otherEvent) EventName() string { return "other.happened" }

func TestBusDeliversToNamedAndWildcardSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewBus(applog.Discard(), nil)

	var named, wildcard []string
	bus.Subscribe("test.happened", "named", func(_ context.Context, event Event) error {
		named = append(named, event.(testEvent).Term)
		return nil
	})
	bus.SubscribeAll("wildcard", func(_ context.Context, event Event) error {
		wildcard = append(wildcard, event.EventName())
		return nil
	})

	bus.Publish(context.Background(), testEvent{Term: "FPGA"})
	bus.Publish(context.Background(), otherEvent{})

	assert.Equal(t, []string{"FPGA"}, named)
	assert.Equal(t, []string{"test.happened", "other.happened"}, wildcard)
}

func TestBusKeepsDeliveringAfterFailures(t *testing.T) {
	t.Parallel()

	bus := NewBus(applog.Discard(), nil)

	calls := 0
	bus.Subscribe("test.happened", "failing", func(context.Context, Event) error {
		calls++
		return eris.New("boom")
	})
	bus.Subscribe("test.happened", "panicking", func(context.Context, Event) error {
		calls++
		panic("kaboom")
	})
	bus.Subscribe("test.happened", "healthy", func(context.Context, Event) error {
		calls++
		return nil
	})

	require.NotPanics(t, func() {
		bus.Publish(context.Background(), testEvent{Term: "ASIC"})
	})
	assert.Equal(t, 3, calls)
}

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSinkWritesEnvelope(t *testing.T) {
	t.Parallel()

	writer := &recordingWriter{}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sink := &KafkaSink{writer: writer, now: func() time.Time { return fixed }}

	require.NoError(t, sink.Handle(context.Background(), testEvent{Term: "CMOS"}))
	require.Len(t, writer.messages, 1)

	message := writer.messages[0]
	assert.Equal(t, "CMOS", string(message.Key))

	var decoded struct {
		Name       string          `json:"name"`
		OccurredAt time.Time       `json:"occurred_at"`
		Payload    json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(message.Value, &decoded))
	assert.Equal(t, "test.happened", decoded.Name)
	assert.True(t, decoded.OccurredAt.Equal(fixed))
	assert.JSONEq(t, `{"term":"CMOS"}`, string(decoded.Payload))

	require.NoError(t, sink.Close())
	assert.True(t, writer.closed)
}

func TestKafkaSinkWrapsWriteErrors(t *testing.T) {
	t.Parallel()

	sink := &KafkaSink{writer: &recordingWriter{err: eris.New("broker down")}, now: time.Now}

	err := sink.Handle(context.Background(), otherEvent{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "writing other.happened event to kafka")
}

func TestNewKafkaSinkValidatesSettings(t *testing.T) {
	t.Parallel()

	_, err := NewKafkaSink(nil, "wiki-events")
	assert.Error(t, err)

	_, err = NewKafkaSink([]string{"localhost:9092"}, "")
	assert.Error(t, err)

	sink, err := NewKafkaSink([]string{"localhost:9092"}, "wiki-events")
	require.NoError(t, err)
	require.NoError(t, sink.Close())
}
