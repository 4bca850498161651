package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyTTL = 24 * time.Hour

// IdempotencyStore remembers (integration, external id) pairs for 24
// hours so re-delivered webhooks short-circuit before touching the
// pipeline. The alerts table's unique index is the durable backstop
// when a key has expired or Redis is down.
type IdempotencyStore struct {
	rdb *redis.Client
}

func NewIdempotencyStore(rdb *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb}
}

func key(integrationID, externalID string) string {
	return fmt.Sprintf("idem:%s:%s", integrationID, externalID)
}

// Remember claims the key for alertID. Returns the previously stored
// alert id and seen=true when the delivery was already processed.
func (s *IdempotencyStore) Remember(ctx context.Context, integrationID, externalID, alertID string) (string, bool, error) {
	k := key(integrationID, externalID)
	set, err := s.rdb.SetNX(ctx, k, alertID, idempotencyTTL).Result()
	if err != nil {
		return "", false, fmt.Errorf("idempotency setnx: %w", err)
	}
	if set {
		return "", false, nil
	}

	existing, err := s.rdb.Get(ctx, k).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Key expired between SetNX and Get. Treat as fresh.
			return "", false, nil
		}
		return "", false, fmt.Errorf("idempotency get: %w", err)
	}
	return existing, true, nil
}
