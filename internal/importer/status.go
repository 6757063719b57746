package importer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/webarchive/backend/internal/models"
)

// Tracker maintains the per-upload progress record in redis. All counter
// mutations are atomic hash increments; the orchestrator and transport
// strategies both write through the same tracker without coordination.
//
// No method surfaces backend errors to its caller: a progress record is
// observational, and an upload must run to completion whether or not its
// counters are reachable.
type Tracker struct {
	rdb    *redis.Client
	expire time.Duration
	log    *zap.Logger
}

// NewTracker creates a tracker. expireSeconds is the idle TTL applied to
// status records; polling refreshes it.
func NewTracker(rdb *redis.Client, expireSeconds int, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	if expireSeconds <= 0 {
		expireSeconds = 120
	}
	return &Tracker{rdb: rdb, expire: time.Duration(expireSeconds) * time.Second, log: log}
}

func uploadKey(user, uploadID string) string {
	return fmt.Sprintf("u:%s:upl:%s", user, uploadID)
}

// Initialize allocates a fresh upload id and stores the initial counters.
// totalSize already includes the transport multiplier.
func (t *Tracker) Initialize(ctx context.Context, user string, totalSize int64, fileCount int, filename, coll, collTitle string) string {
	uploadID := uuid.New().String()
	key := uploadKey(user, uploadID)

	pipe := t.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"size", "0",
		"total_size", strconv.FormatInt(totalSize, 10),
		"files", strconv.Itoa(fileCount),
		"total_files", strconv.Itoa(fileCount),
		"filename", filename,
		"coll", coll,
		"coll_title", collTitle,
		"failed_segments", "0",
		"done", "0",
	)
	pipe.Expire(ctx, key, t.expire)
	if _, err := pipe.Exec(ctx); err != nil {
		t.log.Error("initializing upload status", zap.String("upload_id", uploadID), zap.Error(err))
	}
	return uploadID
}

// Read returns a status snapshot, or ok=false when no record exists.
// A successful read of a record with a known total size refreshes its TTL,
// so a polling client keeps the record alive and an absent one lets it
// lapse.
func (t *Tracker) Read(ctx context.Context, user, uploadID string) (*models.UploadStatus, bool) {
	key := uploadKey(user, uploadID)
	props, err := t.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		t.log.Error("reading upload status", zap.String("upload_id", uploadID), zap.Error(err))
		return nil, false
	}
	if len(props) == 0 {
		return nil, false
	}

	status := &models.UploadStatus{
		User:      user,
		UploadID:  uploadID,
		Filename:  props["filename"],
		Coll:      props["coll"],
		CollTitle: props["coll_title"],
		Done:      props["done"] == "1",
	}
	status.Size, _ = strconv.ParseInt(props["size"], 10, 64)
	status.TotalSize, _ = strconv.ParseInt(props["total_size"], 10, 64)
	status.Files, _ = strconv.Atoi(props["files"])
	status.TotalFiles, _ = strconv.Atoi(props["total_files"])
	status.FailedSegments, _ = strconv.Atoi(props["failed_segments"])

	if status.TotalSize > 0 {
		t.rdb.Expire(ctx, key, t.expire)
	}

	// Counters are a monotonic progress indicator, not exact bytes; with
	// every segment attempted and none failed, report the full total.
	if status.Files == 0 && status.FailedSegments == 0 {
		status.Size = status.TotalSize
	}
	return status, true
}

// Advance atomically adds delta bytes to the size counter. Used for both
// delivered segment bytes and padding spans between segments.
func (t *Tracker) Advance(ctx context.Context, user, uploadID string, delta int64) {
	if delta <= 0 {
		return
	}
	if err := t.rdb.HIncrBy(ctx, uploadKey(user, uploadID), "size", delta).Err(); err != nil {
		t.log.Error("advancing upload size", zap.String("upload_id", uploadID), zap.Error(err))
	}
}

// CompleteSegment atomically decrements the remaining-segment counter.
func (t *Tracker) CompleteSegment(ctx context.Context, user, uploadID string) {
	if err := t.rdb.HIncrBy(ctx, uploadKey(user, uploadID), "files", -1).Err(); err != nil {
		t.log.Error("completing segment", zap.String("upload_id", uploadID), zap.Error(err))
	}
}

// MarkSegmentFailed records a segment whose delivery failed. The upload
// still finishes; pollers see the count instead of inferring failures from
// a size shortfall.
func (t *Tracker) MarkSegmentFailed(ctx context.Context, user, uploadID string) {
	if err := t.rdb.HIncrBy(ctx, uploadKey(user, uploadID), "failed_segments", 1).Err(); err != nil {
		t.log.Error("marking segment failed", zap.String("upload_id", uploadID), zap.Error(err))
	}
}

// Finalize sets the done flag and rearms the expiry so the record outlives
// the last poll by one idle window.
func (t *Tracker) Finalize(ctx context.Context, user, uploadID string) {
	key := uploadKey(user, uploadID)
	pipe := t.rdb.TxPipeline()
	pipe.HSet(ctx, key, "done", "1")
	pipe.Expire(ctx, key, t.expire)
	if _, err := pipe.Exec(ctx); err != nil {
		t.log.Error("finalizing upload status", zap.String("upload_id", uploadID), zap.Error(err))
	}
}
