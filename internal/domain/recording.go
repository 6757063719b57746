package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/webarchive/backend/internal/models"
)

// CreateRecording creates a recording under a collection.
func (s *Store) CreateRecording(ctx context.Context, collID, title, desc, recType string, remoteArchives []string) (*models.Recording, error) {
	now := time.Now().UTC()
	rec := &models.Recording{
		ID:             uuid.New().String(),
		Collection:     collID,
		Title:          title,
		Desc:           desc,
		RecType:        recType,
		RemoteArchives: remoteArchives,
		CreatedAt:      now,
		RecordedAt:     now,
		UpdatedAt:      now,
	}

	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, collRecsKey(collID), rec.ID)
	pipe.HSet(ctx, recInfoKey(rec.ID),
		"coll", collID,
		"title", title,
		"desc", desc,
		"rec_type", recType,
		"ra", strings.Join(remoteArchives, ","),
		"created_at", now.Format(time.RFC3339),
		"recorded_at", now.Format(time.RFC3339),
		"updated_at", now.Format(time.RFC3339),
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("creating recording: %w", err)
	}
	return rec, nil
}

// GetRecording loads a recording by id.
func (s *Store) GetRecording(ctx context.Context, id string) (*models.Recording, error) {
	props, err := s.rdb.HGetAll(ctx, recInfoKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading recording: %w", err)
	}
	if len(props) == 0 {
		return nil, ErrNotFound
	}

	rec := &models.Recording{
		ID:         id,
		Collection: props["coll"],
		Title:      props["title"],
		Desc:       props["desc"],
		RecType:    props["rec_type"],
	}
	if ra := props["ra"]; ra != "" {
		rec.RemoteArchives = strings.Split(ra, ",")
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, props["created_at"])
	rec.RecordedAt, _ = time.Parse(time.RFC3339, props["recorded_at"])
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, props["updated_at"])
	return rec, nil
}

// ListRecordings returns all recordings in a collection.
func (s *Store) ListRecordings(ctx context.Context, collID string) ([]*models.Recording, error) {
	ids, err := s.rdb.SMembers(ctx, collRecsKey(collID)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing recordings: %w", err)
	}

	recs := make([]*models.Recording, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetRecording(ctx, id)
		if err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// SetRecordingTimes stamps the recording's timestamps from imported
// archive metadata. Zero times leave the stored value untouched.
func (s *Store) SetRecordingTimes(ctx context.Context, recID string, createdAt, recordedAt, updatedAt time.Time) error {
	pipe := s.rdb.TxPipeline()
	if !createdAt.IsZero() {
		pipe.HSet(ctx, recInfoKey(recID), "created_at", createdAt.Format(time.RFC3339))
	}
	if !recordedAt.IsZero() {
		pipe.HSet(ctx, recInfoKey(recID), "recorded_at", recordedAt.Format(time.RFC3339))
	}
	if !updatedAt.IsZero() {
		pipe.HSet(ctx, recInfoKey(recID), "updated_at", updatedAt.Format(time.RFC3339))
	}
	_, err := pipe.Exec(ctx)
	return err
}

// NewID returns a fresh domain object identifier.
func NewID() string {
	return uuid.New().String()
}
