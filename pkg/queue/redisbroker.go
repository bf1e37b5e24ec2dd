package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBroker implements Broker over a Redis list, using BLPOP/RPUSH for a
// simple FIFO (§2 "named FIFO queues backed by an external broker").
type RedisBroker struct {
	client     *redis.Client
	pollBlock  int // seconds BLPOP blocks before returning empty
}

// NewRedisBroker wraps an already-configured redis.Client.
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client, pollBlock: 5}
}

func (b *RedisBroker) Publish(ctx context.Context, queueName string, msg TriggerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: marshal trigger message: %w", err)
	}
	if err := b.client.RPush(ctx, listKey(queueName), payload).Err(); err != nil {
		return fmt.Errorf("queue: rpush: %w", err)
	}
	return nil
}

func (b *RedisBroker) Consume(ctx context.Context, queueName string) (*TriggerMessage, bool, error) {
	result, err := b.client.BLPop(ctx, time.Duration(b.pollBlock)*time.Second, listKey(queueName)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		if ctx.Err() != nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("queue: blpop: %w", err)
	}
	// BLPOP returns [key, value]; we only ever pass one key.
	if len(result) != 2 {
		return nil, false, fmt.Errorf("queue: unexpected blpop result shape")
	}
	var msg TriggerMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, false, fmt.Errorf("queue: unmarshal trigger message: %w", err)
	}
	return &msg, true, nil
}

func listKey(queueName string) string { return "workflowengine:queue:" + queueName }
