package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webarchive/backend/internal/models"
	"github.com/webarchive/backend/internal/testutil"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	_, rdb := testutil.NewRedis(t)
	return NewStore(rdb, nil)
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My Collection", "my-collection"},
		{"  Spaces  ", "spaces"},
		{"Mixed_Case-123", "mixed-case-123"},
		{"weird!@#chars", "weirdchars"},
		{"---", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeTitle(tt.in), "input %q", tt.in)
	}
}

func TestStore_CollectionLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	coll, err := s.CreateCollection(ctx, "alice", "", CollectionOpts{Title: "My Stuff", Desc: "things"})
	require.NoError(t, err)
	assert.Equal(t, "my-stuff", coll.Name)
	assert.Equal(t, "alice", coll.Owner)

	got, err := s.GetCollectionByName(ctx, "alice", "my-stuff")
	require.NoError(t, err)
	assert.Equal(t, coll.ID, got.ID)
	assert.Equal(t, "My Stuff", got.Title)
	assert.False(t, got.CreatedAt.IsZero())

	got.Title = "Renamed"
	got.Public = true
	require.NoError(t, s.UpdateCollection(ctx, got))

	got, err = s.GetCollection(ctx, coll.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.True(t, got.Public)

	colls, err := s.ListCollections(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, colls, 1)

	require.NoError(t, s.DeleteCollection(ctx, "alice", "my-stuff"))
	_, err = s.GetCollectionByName(ctx, "alice", "my-stuff")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DuplicateNames(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.CreateCollection(ctx, "alice", "uploads", CollectionOpts{Title: "Uploads"})
	require.NoError(t, err)

	_, err = s.CreateCollection(ctx, "alice", "uploads", CollectionOpts{Title: "Uploads"})
	assert.ErrorIs(t, err, ErrDupeName)

	// AllowDupe appends a numeric suffix instead.
	dupe, err := s.CreateCollection(ctx, "alice", "uploads", CollectionOpts{Title: "Uploads", AllowDupe: true})
	require.NoError(t, err)
	assert.Equal(t, "uploads-2", dupe.Name)

	// Another user is unaffected.
	other, err := s.CreateCollection(ctx, "bob", "uploads", CollectionOpts{Title: "Uploads"})
	require.NoError(t, err)
	assert.Equal(t, "uploads", other.Name)
}

func TestStore_Quota(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	rem, err := s.SizeRemaining(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultMaxSize), rem)

	require.NoError(t, s.AddUserSize(ctx, "alice", 1000))
	rem, err = s.SizeRemaining(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultMaxSize-1000), rem)

	require.NoError(t, s.AddUserSize(ctx, "alice", DefaultMaxSize))
	rem, err = s.SizeRemaining(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rem)
}

func TestStore_RecordingsUnderCollection(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	coll, err := s.CreateCollection(ctx, "alice", "c", CollectionOpts{Title: "C"})
	require.NoError(t, err)

	rec, err := s.CreateRecording(ctx, coll.ID, "Session", "desc", "recording", []string{"ia:20170101000000"})
	require.NoError(t, err)

	got, err := s.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, coll.ID, got.Collection)
	assert.Equal(t, "Session", got.Title)
	assert.Equal(t, []string{"ia:20170101000000"}, got.RemoteArchives)

	recs, err := s.ListRecordings(ctx, coll.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	stamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetRecordingTimes(ctx, rec.ID, time.Time{}, stamp, time.Time{}))
	got, err = s.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, stamp, got.RecordedAt)
	assert.Equal(t, rec.CreatedAt.Unix(), got.CreatedAt.Unix())
}

func TestStore_PagesAndBookmarks(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	coll, err := s.CreateCollection(ctx, "alice", "c", CollectionOpts{Title: "C"})
	require.NoError(t, err)
	rec, err := s.CreateRecording(ctx, coll.ID, "r", "", "recording", nil)
	require.NoError(t, err)

	idMap, err := s.ImportPages(ctx, coll.ID, []models.Page{
		{ID: "src-1", URL: "http://example.com/", Title: "Home", Timestamp: "20240501120000"},
		{ID: "src-2", URL: "http://example.com/about"},
	}, rec.ID)
	require.NoError(t, err)
	require.Len(t, idMap, 2)
	assert.NotEqual(t, "src-1", idMap["src-1"])

	pages, err := s.ListPages(ctx, coll.ID)
	require.NoError(t, err)
	assert.Len(t, pages, 2)
	for _, p := range pages {
		assert.Equal(t, rec.ID, p.Recording)
	}

	list, err := s.CreateBookmarkList(ctx, coll.ID, models.ListData{
		Title:  "Favorites",
		Public: true,
		Bookmarks: []models.Bookmark{
			{URL: "http://example.com/", Title: "Home", PageID: idMap["src-1"]},
		},
	})
	require.NoError(t, err)

	lists, err := s.ListBookmarkLists(ctx, coll.ID)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, "Favorites", lists[0].Title)
	assert.True(t, lists[0].Public)

	bookmarks, err := s.ListBookmarks(ctx, list.ID)
	require.NoError(t, err)
	require.Len(t, bookmarks, 1)
	assert.Equal(t, idMap["src-1"], bookmarks[0].PageID)

	// Deleting the collection sweeps pages and lists too.
	require.NoError(t, s.DeleteCollection(ctx, "alice", "c"))
	pages, err = s.ListPages(ctx, coll.ID)
	require.NoError(t, err)
	assert.Empty(t, pages)
	bookmarks, err = s.ListBookmarks(ctx, list.ID)
	require.NoError(t, err)
	assert.Empty(t, bookmarks)
}
