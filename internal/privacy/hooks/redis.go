package hooks

import (
	"context"
	"fmt"

	"zykor/internal/platform/redis"
	id "zykor/pkg/domain"
)

// CacheHook removes every cached value keyed to the subject. Keys follow the
// application convention "subject:{id}:*".
type CacheHook struct {
	client *redis.Client
}

// NewCacheHook creates a hook clearing the subject's cache entries.
func NewCacheHook(client *redis.Client) *CacheHook {
	return &CacheHook{client: client}
}

func (h *CacheHook) Name() string { return "cache" }

func (h *CacheHook) DeleteSubjectData(ctx context.Context, subjectID id.SubjectID) error {
	pattern := fmt.Sprintf("subject:%s:*", subjectID.String())

	iter := h.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == 100 {
			if err := h.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete cache keys: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cache keys: %w", err)
	}
	if len(keys) > 0 {
		if err := h.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("delete cache keys: %w", err)
		}
	}
	return nil
}
