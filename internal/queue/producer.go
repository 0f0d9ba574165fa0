package queue

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Producer appends tasks to the analysis stream. The returned stream entry
// id doubles as the opaque task reference; nothing else about the task is
// kept once workers acknowledge it.
type Producer struct {
	client *redis.Client
	stream string
}

func NewProducer(client *redis.Client, stream string) *Producer {
	return &Producer{client: client, stream: stream}
}

func (p *Producer) Enqueue(ctx context.Context, values map[string]any) (string, error) {
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Result()
}
