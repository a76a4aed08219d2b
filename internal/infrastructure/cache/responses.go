package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ResponseKeyPrefix namespaces cached HTTP responses.
const ResponseKeyPrefix = "historysync:http"

// InvalidateResponses drops every cached HTTP response. Without a client it
// does nothing.
func InvalidateResponses(ctx context.Context, client *redis.Client) error {
	if client == nil {
		return nil
	}
	iter := client.Scan(ctx, 0, ResponseKeyPrefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cached responses: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("drop cached responses: %w", err)
	}
	return nil
}
