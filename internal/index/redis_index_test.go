package index

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webarchive/backend/internal/models"
	"github.com/webarchive/backend/internal/testutil"
)

func TestRedisIndex_RoundTrip(t *testing.T) {
	_, rdb := testutil.NewRedis(t)
	ctx := context.Background()
	idx := NewRedisIndex(rdb)

	entries := []models.CDXEntry{
		{URL: "http://example.com/", Timestamp: "20240501120000", Mime: "text/html", Status: "200", Digest: "AAA"},
		{URL: "http://example.com/style.css", Timestamp: "20240501120001", Mime: "text/css", Status: "200", Digest: "BBB"},
	}
	for _, e := range entries {
		require.NoError(t, idx.Add(ctx, "coll1", "rec1", e))
	}

	got, err := idx.Entries(ctx, "coll1", "rec1")
	require.NoError(t, err)
	assert.ElementsMatch(t, entries, got)

	// Recordings are isolated from each other.
	other, err := idx.Entries(ctx, "coll1", "rec2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRedisIndex_SkipsUnparseableMembers(t *testing.T) {
	_, rdb := testutil.NewRedis(t)
	ctx := context.Background()
	idx := NewRedisIndex(rdb)

	require.NoError(t, idx.Add(ctx, "c", "r", models.CDXEntry{URL: "http://example.com/"}))
	require.NoError(t, rdb.ZAdd(ctx, cdxjKey("c", "r"), redis.Z{Member: "not json"}).Err())

	got, err := idx.Entries(ctx, "c", "r")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
