// Package domain persists users, collections, recordings, pages and
// bookmark lists in redis. Object properties live in per-object hashes;
// page and bookmark payloads are msgpack blobs inside hash fields.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/webarchive/backend/internal/models"
)

// DefaultMaxSize is the storage quota applied to users without an explicit
// max_size property.
const DefaultMaxSize = 10 * 1024 * 1024 * 1024

var (
	// ErrDupeName is returned when a collection name is already taken.
	ErrDupeName = errors.New("duplicate collection name")
	// ErrNotFound is returned for missing objects.
	ErrNotFound = errors.New("not found")
)

// Store is the redis-backed domain object store.
type Store struct {
	rdb *redis.Client
	log *zap.Logger
}

// NewStore creates a domain store on an existing redis client.
func NewStore(rdb *redis.Client, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{rdb: rdb, log: log}
}

func userInfoKey(user string) string  { return fmt.Sprintf("u:%s:info", user) }
func userCollsKey(user string) string { return fmt.Sprintf("u:%s:colls", user) }
func collInfoKey(id string) string    { return fmt.Sprintf("coll:%s:info", id) }
func collRecsKey(id string) string    { return fmt.Sprintf("coll:%s:recs", id) }
func recInfoKey(id string) string     { return fmt.Sprintf("rec:%s:info", id) }

// SanitizeTitle converts a display title into a slug usable as a
// collection name.
func SanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

// SizeRemaining returns the user's remaining storage quota in bytes.
func (s *Store) SizeRemaining(ctx context.Context, user string) (int64, error) {
	props, err := s.rdb.HGetAll(ctx, userInfoKey(user)).Result()
	if err != nil {
		return 0, fmt.Errorf("reading user info: %w", err)
	}

	maxSize := int64(DefaultMaxSize)
	if v, ok := props["max_size"]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			maxSize = n
		}
	}
	var size int64
	if v, ok := props["size"]; ok {
		size, _ = strconv.ParseInt(v, 10, 64)
	}

	rem := maxSize - size
	if rem < 0 {
		rem = 0
	}
	return rem, nil
}

// AddUserSize charges delta bytes against the user's quota.
func (s *Store) AddUserSize(ctx context.Context, user string, delta int64) error {
	return s.rdb.HIncrBy(ctx, userInfoKey(user), "size", delta).Err()
}

// HasCollection reports whether the user owns a collection with the name.
func (s *Store) HasCollection(ctx context.Context, user, name string) (bool, error) {
	ok, err := s.rdb.HExists(ctx, userCollsKey(user), name).Result()
	if err != nil {
		return false, fmt.Errorf("checking collection: %w", err)
	}
	return ok, nil
}

// CollectionOpts carries optional properties for CreateCollection.
type CollectionOpts struct {
	Title       string
	Desc        string
	Public      bool
	PublicIndex bool
	AllowDupe   bool
}

// CreateCollection creates a collection under the user. With AllowDupe set,
// a taken name gets a numeric suffix instead of failing.
func (s *Store) CreateCollection(ctx context.Context, user, name string, opts CollectionOpts) (*models.Collection, error) {
	if name == "" {
		name = SanitizeTitle(opts.Title)
	}
	if name == "" {
		return nil, fmt.Errorf("empty collection name")
	}

	exists, err := s.HasCollection(ctx, user, name)
	if err != nil {
		return nil, err
	}
	if exists {
		if !opts.AllowDupe {
			return nil, ErrDupeName
		}
		base := name
		for i := 2; ; i++ {
			name = fmt.Sprintf("%s-%d", base, i)
			exists, err = s.HasCollection(ctx, user, name)
			if err != nil {
				return nil, err
			}
			if !exists {
				break
			}
		}
	}

	now := time.Now().UTC()
	coll := &models.Collection{
		ID:          uuid.New().String(),
		Name:        name,
		Owner:       user,
		Title:       opts.Title,
		Desc:        opts.Desc,
		Public:      opts.Public,
		PublicIndex: opts.PublicIndex,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, userCollsKey(user), name, coll.ID)
	s.writeCollProps(ctx, pipe, coll)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("creating collection: %w", err)
	}

	s.log.Debug("created collection",
		zap.String("user", user), zap.String("coll", coll.ID), zap.String("name", name))
	return coll, nil
}

func (s *Store) writeCollProps(ctx context.Context, pipe redis.Pipeliner, coll *models.Collection) {
	pipe.HSet(ctx, collInfoKey(coll.ID),
		"name", coll.Name,
		"owner", coll.Owner,
		"title", coll.Title,
		"desc", coll.Desc,
		"public", boolProp(coll.Public),
		"public_index", boolProp(coll.PublicIndex),
		"created_at", coll.CreatedAt.Format(time.RFC3339),
		"updated_at", coll.UpdatedAt.Format(time.RFC3339),
	)
}

// GetCollectionByName resolves a collection by its per-user name.
func (s *Store) GetCollectionByName(ctx context.Context, user, name string) (*models.Collection, error) {
	id, err := s.rdb.HGet(ctx, userCollsKey(user), name).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolving collection name: %w", err)
	}
	return s.GetCollection(ctx, id)
}

// GetCollection loads a collection by id.
func (s *Store) GetCollection(ctx context.Context, id string) (*models.Collection, error) {
	props, err := s.rdb.HGetAll(ctx, collInfoKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading collection: %w", err)
	}
	if len(props) == 0 {
		return nil, ErrNotFound
	}

	coll := &models.Collection{
		ID:          id,
		Name:        props["name"],
		Owner:       props["owner"],
		Title:       props["title"],
		Desc:        props["desc"],
		Public:      props["public"] == "1",
		PublicIndex: props["public_index"] == "1",
	}
	coll.CreatedAt, _ = time.Parse(time.RFC3339, props["created_at"])
	coll.UpdatedAt, _ = time.Parse(time.RFC3339, props["updated_at"])
	return coll, nil
}

// ListCollections returns all of a user's collections.
func (s *Store) ListCollections(ctx context.Context, user string) ([]*models.Collection, error) {
	ids, err := s.rdb.HGetAll(ctx, userCollsKey(user)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	colls := make([]*models.Collection, 0, len(ids))
	for _, id := range ids {
		coll, err := s.GetCollection(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		colls = append(colls, coll)
	}
	return colls, nil
}

// UpdateCollection persists mutable collection properties.
func (s *Store) UpdateCollection(ctx context.Context, coll *models.Collection) error {
	coll.UpdatedAt = time.Now().UTC()
	pipe := s.rdb.TxPipeline()
	s.writeCollProps(ctx, pipe, coll)
	_, err := pipe.Exec(ctx)
	return err
}

// SetCollectionTimes overrides the created/updated timestamps, used when an
// imported archive carries its own collection metadata.
func (s *Store) SetCollectionTimes(ctx context.Context, collID string, createdAt, updatedAt time.Time) error {
	pipe := s.rdb.TxPipeline()
	if !createdAt.IsZero() {
		pipe.HSet(ctx, collInfoKey(collID), "created_at", createdAt.Format(time.RFC3339))
	}
	if !updatedAt.IsZero() {
		pipe.HSet(ctx, collInfoKey(collID), "updated_at", updatedAt.Format(time.RFC3339))
	}
	_, err := pipe.Exec(ctx)
	return err
}

// DeleteCollection removes a collection and all of its recordings, pages
// and lists.
func (s *Store) DeleteCollection(ctx context.Context, user, name string) error {
	coll, err := s.GetCollectionByName(ctx, user, name)
	if err != nil {
		return err
	}

	recIDs, err := s.rdb.SMembers(ctx, collRecsKey(coll.ID)).Result()
	if err != nil {
		return fmt.Errorf("listing recordings: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	for _, recID := range recIDs {
		pipe.Del(ctx, recInfoKey(recID))
	}
	pipe.Del(ctx, collRecsKey(coll.ID))
	pipe.Del(ctx, collPagesKey(coll.ID))
	listIDs, _ := s.rdb.LRange(ctx, collListsKey(coll.ID), 0, -1).Result()
	for _, listID := range listIDs {
		pipe.Del(ctx, listInfoKey(listID))
		pipe.Del(ctx, listBookmarksKey(listID))
	}
	pipe.Del(ctx, collListsKey(coll.ID))
	pipe.Del(ctx, collInfoKey(coll.ID))
	pipe.HDel(ctx, userCollsKey(user), name)
	_, err = pipe.Exec(ctx)
	return err
}

func boolProp(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
