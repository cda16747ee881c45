package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// DefaultKafkaTopic and DefaultKafkaGroup are used when unset.
const (
	DefaultKafkaTopic = "docchat.ingest"
	DefaultKafkaGroup = "docchat-workers"
)

// KafkaQueue publishes jobs to a topic and consumes them in a consumer group.
// Offsets are committed by Ack, after the job is processed. A commit covers
// every earlier offset of its partition, so with several workers a crash can
// still lose a job that finished out of order behind a later one.
type KafkaQueue struct {
	writer *kafka.Writer
	reader *kafka.Reader

	mu       sync.Mutex
	inFlight map[string]kafka.Message // document id -> fetched message
}

func NewKafkaQueue(brokers []string, topic, groupID string) (*KafkaQueue, error) {
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	if groupID == "" {
		groupID = DefaultKafkaGroup
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		MaxAttempts: 10,
		Dialer: &kafka.Dialer{
			Timeout: 10 * time.Second,
		},
	})

	logrus.WithFields(logrus.Fields{"topic": topic, "group": groupID}).Info("kafka job queue configured")
	return &KafkaQueue{writer: writer, reader: reader, inFlight: map[string]kafka.Message{}}, nil
}

func (q *KafkaQueue) Enqueue(ctx context.Context, job IngestJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.writer.WriteMessages(ctx, kafka.Message{Key: []byte(job.DocumentID), Value: payload}); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (q *KafkaQueue) Dequeue(ctx context.Context) (IngestJob, error) {
	for {
		msg, err := q.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return IngestJob{}, ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return IngestJob{}, ErrClosed
			}
			return IngestJob{}, fmt.Errorf("kafka read: %w", err)
		}
		var job IngestJob
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			logrus.WithError(err).WithField("offset", msg.Offset).Error("dropping malformed ingest job")
			if err := q.reader.CommitMessages(ctx, msg); err != nil {
				logrus.WithError(err).Warn("commit malformed ingest job")
			}
			continue
		}

		q.mu.Lock()
		q.inFlight[job.DocumentID] = msg
		q.mu.Unlock()
		return job, nil
	}
}

// Ack commits the offset of the job's message.
func (q *KafkaQueue) Ack(ctx context.Context, job IngestJob) error {
	q.mu.Lock()
	msg, ok := q.inFlight[job.DocumentID]
	delete(q.inFlight, job.DocumentID)
	q.mu.Unlock()
	if !ok {
		return fmt.Errorf("ack %s: job was not dequeued here", job.DocumentID)
	}
	if err := q.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka commit: %w", err)
	}
	return nil
}

func (q *KafkaQueue) Close() error {
	return errors.Join(q.writer.Close(), q.reader.Close())
}

var _ JobQueue = (*KafkaQueue)(nil)
