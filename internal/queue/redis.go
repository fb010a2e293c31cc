package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/linkshelf/server/internal/observability"
	redis "github.com/redis/go-redis/v9"
)

const defaultRedisKey = "linkshelf:enrichment:queue"

// RedisQueue keeps jobs in a sorted set scored by due time
type RedisQueue struct {
	client *redis.Client
	key    string
	log    *observability.Logger
}

// NewRedisQueue connects to addr; key defaults to the shared enrichment set
func NewRedisQueue(addr, key string, log *observability.Logger) (*RedisQueue, error) {
	if key == "" {
		key = defaultRedisKey
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       0,
		Protocol: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisQueue{client: client, key: key, log: log.Component("queue")}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, job *EnrichItemDataJob) error {
	prepare(job)

	member, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(job.NotBefore.UnixMilli()),
		Member: member,
	}).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue claims the earliest due member. ZREM decides the winner when
// several workers read the same member.
func (q *RedisQueue) Dequeue(ctx context.Context) (*EnrichItemDataJob, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	members, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: 1,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	removed, err := q.client.ZRem(ctx, q.key, members[0]).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if removed == 0 {
		return nil, nil
	}

	var job EnrichItemDataJob
	if err := json.Unmarshal([]byte(members[0]), &job); err != nil {
		q.log.WithError(err).Error("Dropping undecodable job")
		return nil, nil
	}
	return &job, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
