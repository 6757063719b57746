package index

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/webarchive/backend/internal/models"
)

// RedisIndex reads the CDXJ sorted set the record host writes while
// ingesting uploaded segments.
type RedisIndex struct {
	rdb *redis.Client
}

// NewRedisIndex creates an index reader on an existing redis client.
func NewRedisIndex(rdb *redis.Client) *RedisIndex {
	return &RedisIndex{rdb: rdb}
}

func cdxjKey(coll, rec string) string {
	return fmt.Sprintf("coll:%s:rec:%s:cdxj", coll, rec)
}

// Entries returns the recording's index in score order. Unparseable
// members are skipped.
func (i *RedisIndex) Entries(ctx context.Context, coll, rec string) ([]models.CDXEntry, error) {
	members, err := i.rdb.ZRange(ctx, cdxjKey(coll, rec), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading cdxj index: %w", err)
	}

	entries := make([]models.CDXEntry, 0, len(members))
	for _, member := range members {
		var entry models.CDXEntry
		if err := json.Unmarshal([]byte(member), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Add appends an entry to the recording's index. The record host does this
// during ingest; tests use it to seed detection fixtures.
func (i *RedisIndex) Add(ctx context.Context, coll, rec string, entry models.CDXEntry) error {
	blob, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cdxj entry: %w", err)
	}
	return i.rdb.ZAdd(ctx, cdxjKey(coll, rec), redis.Z{
		Score:  0,
		Member: string(blob),
	}).Err()
}
