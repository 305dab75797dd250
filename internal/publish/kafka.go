// Package publish streams stored AIS position reports to Kafka.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/maritimeviz/maritimeviz/internal/models"
)

// DefaultBatchSize is the number of messages per WriteMessages call.
const DefaultBatchSize = 500

// ErrNoBrokers is returned by NewKafkaSink without broker addresses.
var ErrNoBrokers = errors.New("no kafka brokers configured")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaSink publishes position reports as JSON keyed by MMSI.
type KafkaSink struct {
	writer    messageWriter
	batchSize int
	logger    *zap.Logger
}

// NewKafkaSink creates a producer for topic.
func NewKafkaSink(brokers []string, topic string, batchSize int, logger *zap.Logger) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    batchSize,
	}
	return newKafkaSink(w, batchSize, logger), nil
}

func newKafkaSink(w messageWriter, batchSize int, logger *zap.Logger) *KafkaSink {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSink{writer: w, batchSize: batchSize, logger: logger.Named("kafka")}
}

// PublishPositions writes rows in batches. Hashing on the MMSI key keeps
// every report of one vessel on the same partition, in order.
func (k *KafkaSink) PublishPositions(ctx context.Context, rows []*models.PositionReport) error {
	for start := 0; start < len(rows); start += k.batchSize {
		end := min(start+k.batchSize, len(rows))
		msgs := make([]kafkago.Message, 0, end-start)
		for _, r := range rows[start:end] {
			msg, err := positionMessage(r)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("writing %d messages: %w", len(msgs), err)
		}
		k.logger.Debug("published position reports", zap.Int("count", len(msgs)))
	}
	return nil
}

// Close flushes pending messages and closes the producer.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

func positionMessage(r *models.PositionReport) (kafkago.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize position report: %w", err)
	}
	msg := kafkago.Message{
		Key:   []byte(strconv.FormatInt(r.MMSI, 10)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "message_type", Value: []byte(strconv.Itoa(int(r.ID)))},
		},
	}
	if ts := r.TagBlock.Time(); !ts.IsZero() {
		msg.Time = ts
		msg.Headers = append(msg.Headers, kafkago.Header{Key: "received_at", Value: []byte(ts.Format(time.RFC3339))})
	}
	return msg, nil
}
