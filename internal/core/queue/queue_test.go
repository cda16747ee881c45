package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKafkaQueue_RequiresBrokers(t *testing.T) {
	_, err := NewKafkaQueue(nil, "topic", "group")
	assert.Error(t, err)
}

func TestNewRedisQueue_RejectsBadURL(t *testing.T) {
	_, err := NewRedisQueue(context.Background(), "not a url", "")
	assert.ErrorContains(t, err, "parse redis url")
}

func TestAck_UnknownJobFailsBeforeAnyRoundTrip(t *testing.T) {
	ctx := context.Background()

	rq := &RedisQueue{key: DefaultRedisKey, processingKey: DefaultRedisKey + ":processing", inFlight: map[string]string{}}
	assert.ErrorContains(t, rq.Ack(ctx, IngestJob{DocumentID: "d1"}), "not dequeued")

	kq, err := NewKafkaQueue([]string{"127.0.0.1:1"}, "", "")
	require.NoError(t, err)
	defer kq.Close()
	assert.ErrorContains(t, kq.Ack(ctx, IngestJob{DocumentID: "d1"}), "not dequeued")
}
