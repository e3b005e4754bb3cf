package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/JetBrains/intellij-plugins-sub025/internal/errorutil"
	"github.com/JetBrains/intellij-plugins-sub025/internal/sample"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaSource reads wire events from a Kafka topic, one event per message.
type KafkaSource struct {
	reader messageReader
	logger zerolog.Logger
}

func NewKafkaSource(config kafka.ReaderConfig, logger zerolog.Logger) *KafkaSource {
	return &KafkaSource{
		reader: kafka.NewReader(config),
		logger: logger.With().Str("topic", config.Topic).Logger(),
	}
}

// Next returns the next event. Messages that don't hold a valid event yield
// an error wrapping errorutil.ErrMalformedEvent, the source stays usable.
func (k *KafkaSource) Next(ctx context.Context) (sample.Event, error) {
	m, err := k.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return sample.Event{}, io.EOF
		}
		return sample.Event{}, err
	}
	e, err := DecodeMessage(m)
	if err != nil {
		k.logger.Debug().Int("partition", m.Partition).Int64("offset", m.Offset).Err(err).Msg("skipping message")
		return sample.Event{}, err
	}
	return e, nil
}

func (k *KafkaSource) Close() error {
	return k.reader.Close()
}

// DecodeMessage decodes and validates the event held by m.
func DecodeMessage(m kafka.Message) (sample.Event, error) {
	var raw sample.RawEvent
	if err := json.Unmarshal(m.Value, &raw); err != nil {
		return sample.Event{}, fmt.Errorf("stream: %w: offset %d: %v", errorutil.ErrMalformedEvent, m.Offset, err)
	}
	return raw.ToEvent()
}

// EncodeMessages builds one message per event, keyed by event kind.
func EncodeMessages(events []sample.Event) ([]kafka.Message, error) {
	messages := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		b, err := json.Marshal(sample.FromEvent(e))
		if err != nil {
			return nil, err
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(e.Kind.String()),
			Value: b,
		})
	}
	return messages, nil
}
