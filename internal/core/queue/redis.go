package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// DefaultRedisKey is the list that holds pending ingestion jobs.
const DefaultRedisKey = "docchat:ingest"

// pollTimeout bounds each blocking pop so cancellation is noticed promptly.
const pollTimeout = 5 * time.Second

// RedisQueue pushes JSON jobs onto a Redis list. Dequeue moves each job
// atomically onto a processing list and Ack removes it from there, so a job
// is never lost between pop and completion. Jobs stranded by a worker crash
// stay on the processing list until an operator pushes them back.
type RedisQueue struct {
	client        *redis.Client
	key           string
	processingKey string

	mu       sync.Mutex
	inFlight map[string]string // document id -> raw payload
}

// NewRedisQueue connects to the Redis at url (redis://host:port/db) and
// retries the initial ping with exponential backoff.
func NewRedisQueue(ctx context.Context, url, key string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if key == "" {
		key = DefaultRedisKey
	}
	rdb := redis.NewClient(opts)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(func() error { return rdb.Ping(ctx).Err() }, backoff.WithContext(b, ctx)); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logrus.WithField("key", key).Info("redis job queue connected")
	return &RedisQueue{client: rdb, key: key, processingKey: key + ":processing", inFlight: map[string]string{}}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, job IngestJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (IngestJob, error) {
	for {
		payload, err := q.client.BRPopLPush(ctx, q.key, q.processingKey, pollTimeout).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return IngestJob{}, ctx.Err()
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return IngestJob{}, ctx.Err()
			}
			if errors.Is(err, redis.ErrClosed) {
				return IngestJob{}, ErrClosed
			}
			return IngestJob{}, fmt.Errorf("redis brpoplpush: %w", err)
		}

		var job IngestJob
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			logrus.WithError(err).WithField("payload", payload).Error("dropping malformed ingest job")
			if err := q.client.LRem(ctx, q.processingKey, 1, payload).Err(); err != nil {
				logrus.WithError(err).Warn("remove malformed ingest job")
			}
			continue
		}

		q.mu.Lock()
		q.inFlight[job.DocumentID] = payload
		q.mu.Unlock()
		return job, nil
	}
}

// Ack drops the job from the processing list.
func (q *RedisQueue) Ack(ctx context.Context, job IngestJob) error {
	q.mu.Lock()
	payload, ok := q.inFlight[job.DocumentID]
	delete(q.inFlight, job.DocumentID)
	q.mu.Unlock()
	if !ok {
		return fmt.Errorf("ack %s: job was not dequeued here", job.DocumentID)
	}
	if err := q.client.LRem(ctx, q.processingKey, 1, payload).Err(); err != nil {
		return fmt.Errorf("redis lrem: %w", err)
	}
	return nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

var _ JobQueue = (*RedisQueue)(nil)
