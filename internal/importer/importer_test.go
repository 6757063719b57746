package importer

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webarchive/backend/internal/config"
	"github.com/webarchive/backend/internal/domain"
	"github.com/webarchive/backend/internal/index"
	"github.com/webarchive/backend/internal/models"
	"github.com/webarchive/backend/internal/replay"
	"github.com/webarchive/backend/internal/testutil"
)

type recordHost struct {
	mu     sync.Mutex
	bodies map[string][]byte
	fail   bool
}

func (h *recordHost) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.fail {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		body, _ := io.ReadAll(r.Body)
		h.mu.Lock()
		if h.bodies == nil {
			h.bodies = make(map[string][]byte)
		}
		h.bodies[r.URL.Path] = body
		h.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
}

func (h *recordHost) totalBytes() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	var n int64
	for _, b := range h.bodies {
		n += int64(len(b))
	}
	return n
}

func newTestImporter(t *testing.T) (*Importer, *domain.Store, *recordHost, func(user, upid string) int64) {
	t.Helper()
	_, rdb := testutil.NewRedis(t)

	host := &recordHost{}
	server := httptest.NewServer(host.handler())
	t.Cleanup(server.Close)

	cfg := config.DefaultConfig()
	cfg.Storage.TempDirectory = t.TempDir()
	cfg.Upload.RecordHost = strings.TrimPrefix(server.URL, "http://")

	store := domain.NewStore(rdb, nil)
	tracker := NewTracker(rdb, cfg.Upload.StatusExpireSeconds, nil)
	remote := NewRemoteTransport(cfg.Upload.RecordHost, cfg.Upload.UploadPathTemplate,
		index.NewRedisIndex(rdb), tracker, nil)
	im := NewImporter(cfg, store, tracker, replay.NewLocator(nil), remote, nil, nil)

	rawSize := func(user, upid string) int64 {
		v, err := rdb.HGet(context.Background(), uploadKey(user, upid), "size").Result()
		require.NoError(t, err)
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return im, store, host, rawSize
}

func waitDone(t *testing.T, im *Importer, user, uploadID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		status, ok := im.Tracker().Read(context.Background(), user, uploadID)
		return ok && status.Done
	}, 5*time.Second, 10*time.Millisecond)
}

func TestUploadFile_EndToEnd(t *testing.T) {
	im, store, host, rawSize := newTestImporter(t)
	ctx := context.Background()

	b := testutil.NewArchive(t)
	b.Marker(map[string]interface{}{
		"type":       "collection",
		"title":      "Travel",
		"created_at": 1714564800,
		"updated_at": 1714568400,
		"lists": []map[string]interface{}{
			{"title": "Favorites", "bookmarks": []map[string]interface{}{
				{"url": "http://example.com/", "page_id": "p1"},
			}},
		},
	})
	b.Marker(map[string]interface{}{
		"type":  "recording",
		"title": "Session One",
		"pages": []map[string]interface{}{
			{"id": "p1", "url": "http://example.com/", "timestamp": "20240501120000"},
		},
		"recorded_at": 1714564800,
	})
	b.Response("http://example.com/", "<html>home</html>")
	b.Response("http://example.com/about", "<html>about</html>")

	data := b.Bytes()
	result, err := im.UploadFile(ctx, "alice", bytes.NewReader(data), int64(len(data)), "travel.warc", "")
	require.NoError(t, err)
	require.NotEmpty(t, result.UploadID)
	assert.Equal(t, "travel", result.Coll)

	waitDone(t, im, "alice", result.UploadID)

	status, ok := im.Tracker().Read(ctx, "alice", result.UploadID)
	require.True(t, ok)
	assert.Equal(t, 0, status.Files)
	assert.Equal(t, 2, status.TotalFiles)
	assert.Zero(t, status.FailedSegments)
	assert.Equal(t, status.TotalSize, status.Size)

	// Delivered bytes plus marker padding cover the archive exactly, both
	// legs counted.
	assert.Equal(t, int64(len(data))*2, rawSize("alice", result.UploadID))
	assert.Equal(t, int64(len(data))*2, status.TotalSize)

	coll, err := store.GetCollectionByName(ctx, "alice", "travel")
	require.NoError(t, err)
	assert.Equal(t, "Travel", coll.Title)

	recs, err := store.ListRecordings(ctx, coll.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Session One", recs[0].Title)

	pages, err := store.ListPages(ctx, coll.ID)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "http://example.com/", pages[0].URL)
	assert.Equal(t, recs[0].ID, pages[0].Recording)
	assert.NotEqual(t, "p1", pages[0].ID)

	// Bookmarks were re-keyed from the archive's page ids to assigned ones.
	lists, err := store.ListBookmarkLists(ctx, coll.ID)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	bookmarks, err := store.ListBookmarks(ctx, lists[0].ID)
	require.NoError(t, err)
	require.Len(t, bookmarks, 1)
	assert.Equal(t, pages[0].ID, bookmarks[0].PageID)

	// The record host received every segment byte once.
	wantDelivered := int64(len(data)) - firstSegmentOffset(t, data)
	assert.Equal(t, wantDelivered, host.totalBytes())
}

func firstSegmentOffset(t *testing.T, data []byte) int64 {
	t.Helper()
	s := NewScanner(nil, nil)
	segments, _, err := s.Scan(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	for _, seg := range segments {
		if seg.Length > 0 {
			return seg.Offset
		}
	}
	return 0
}

func TestUploadFile_ZeroLengthSegmentSkipsDelivery(t *testing.T) {
	im, store, host, _ := newTestImporter(t)
	ctx := context.Background()

	b := testutil.NewArchive(t)
	b.Marker(map[string]interface{}{"type": "recording", "title": "empty", "recorded_at": 1714564800})
	b.Marker(map[string]interface{}{"type": "recording", "title": "full"})
	b.Response("http://example.com/", "<html>x</html>")

	data := b.Bytes()
	result, err := im.UploadFile(ctx, "alice", bytes.NewReader(data), int64(len(data)), "two.warc", "")
	require.NoError(t, err)
	waitDone(t, im, "alice", result.UploadID)

	coll, err := store.GetCollectionByName(ctx, "alice", "uploads")
	require.NoError(t, err)
	recs, err := store.ListRecordings(ctx, coll.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Only the non-empty segment reached the record host, but the empty
	// recording still got its metadata timestamps.
	assert.Len(t, host.bodies, 1)
	for _, rec := range recs {
		if rec.Title == "empty" {
			assert.Equal(t, int64(1714564800), rec.RecordedAt.Unix())
		}
	}
}

func TestUploadFile_ForceCollMustExist(t *testing.T) {
	im, _, _, _ := newTestImporter(t)

	b := testutil.NewArchive(t)
	b.Response("http://example.com/", "x")
	data := b.Bytes()

	_, err := im.UploadFile(context.Background(), "alice",
		bytes.NewReader(data), int64(len(data)), "a.warc", "missing")
	assert.ErrorIs(t, err, ErrNoSuchCollection)
}

func TestUploadFile_ForceCollUsed(t *testing.T) {
	im, store, _, _ := newTestImporter(t)
	ctx := context.Background()

	coll, err := store.CreateCollection(ctx, "alice", "existing", domain.CollectionOpts{Title: "Existing"})
	require.NoError(t, err)

	b := testutil.NewArchive(t)
	b.Marker(map[string]interface{}{"type": "recording", "title": "r"})
	b.Response("http://example.com/", "x")
	data := b.Bytes()

	result, err := im.UploadFile(ctx, "alice", bytes.NewReader(data), int64(len(data)), "a.warc", "existing")
	require.NoError(t, err)
	assert.Equal(t, "existing", result.Coll)
	waitDone(t, im, "alice", result.UploadID)

	recs, err := store.ListRecordings(ctx, coll.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestUploadFile_OutOfSpace(t *testing.T) {
	im, store, _, _ := newTestImporter(t)
	ctx := context.Background()

	require.NoError(t, store.AddUserSize(ctx, "alice", domain.DefaultMaxSize))

	b := testutil.NewArchive(t)
	b.Response("http://example.com/", "x")
	data := b.Bytes()

	_, err := im.UploadFile(ctx, "alice", bytes.NewReader(data), int64(len(data)), "a.warc", "")
	assert.ErrorIs(t, err, ErrOutOfSpace)
}

func TestUploadFile_IncompleteUpload(t *testing.T) {
	im, _, _, _ := newTestImporter(t)

	body := []byte("short body")
	_, err := im.UploadFile(context.Background(), "alice",
		bytes.NewReader(body), 1000, "a.warc", "")

	var incomplete *IncompleteUploadError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, int64(1000), incomplete.Expected)
	assert.Equal(t, int64(len(body)), incomplete.Actual)
}

func TestUploadFile_NoArchiveData(t *testing.T) {
	im, _, _, _ := newTestImporter(t)

	body := []byte("this is not warc content at all")
	_, err := im.UploadFile(context.Background(), "alice",
		bytes.NewReader(body), int64(len(body)), "a.warc", "")
	assert.ErrorIs(t, err, ErrNoArchiveData)
}

func TestUploadFile_FailedSegmentDoesNotAbortImport(t *testing.T) {
	im, store, host, _ := newTestImporter(t)
	ctx := context.Background()
	host.fail = true

	b := testutil.NewArchive(t)
	b.Marker(map[string]interface{}{"type": "recording", "title": "r1"})
	b.Response("http://example.com/", "x")
	b.Marker(map[string]interface{}{"type": "recording", "title": "r2"})
	b.Response("http://example.com/2", "y")
	data := b.Bytes()

	result, err := im.UploadFile(ctx, "alice", bytes.NewReader(data), int64(len(data)), "a.warc", "")
	require.NoError(t, err)
	waitDone(t, im, "alice", result.UploadID)

	status, ok := im.Tracker().Read(ctx, "alice", result.UploadID)
	require.True(t, ok)
	assert.True(t, status.Done)
	assert.Equal(t, 2, status.FailedSegments)
	assert.Equal(t, 0, status.Files)
	assert.Less(t, status.Size, status.TotalSize)

	// Recordings exist even though no bytes were delivered for them.
	coll, err := store.GetCollectionByName(ctx, "alice", "uploads")
	require.NoError(t, err)
	recs, err := store.ListRecordings(ctx, coll.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestUploadFile_CollectionSegmentBytesCountAsPadding(t *testing.T) {
	im, _, host, rawSize := newTestImporter(t)
	ctx := context.Background()

	// Records between the collection marker and the first recording marker
	// give the collection segment a non-zero length.
	b := testutil.NewArchive(t)
	b.Marker(map[string]interface{}{"type": "collection", "title": "C"})
	b.Response("http://example.com/meta", "collection scope")
	b.Marker(map[string]interface{}{"type": "recording", "title": "r"})
	b.Response("http://example.com/", "<html>x</html>")

	data := b.Bytes()
	result, err := im.UploadFile(ctx, "alice", bytes.NewReader(data), int64(len(data)), "c.warc", "")
	require.NoError(t, err)
	waitDone(t, im, "alice", result.UploadID)

	// Only the recording segment reached the record host; the collection
	// segment's bytes land in padding so the counter still hits the total.
	assert.Len(t, host.bodies, 1)
	assert.Equal(t, int64(len(data))*2, rawSize("alice", result.UploadID))
}

type stubIndex struct {
	entries []models.CDXEntry
}

func (s stubIndex) Entries(ctx context.Context, coll, rec string) ([]models.CDXEntry, error) {
	return s.entries, nil
}

type stubTransport struct {
	idx index.URLIndex
}

func (s stubTransport) Deliver(ctx context.Context, seg *Segment, src io.ReadSeeker, user, uploadID string) error {
	return nil
}
func (s stubTransport) PageIndex() index.URLIndex { return s.idx }
func (s stubTransport) Multiplier() int64         { return 1 }
func (s stubTransport) Detached() bool            { return false }
func (s stubTransport) ForcePublic() bool         { return false }

func TestUploadFile_ExplicitEmptyPagesSuppressesDetection(t *testing.T) {
	_, rdb := testutil.NewRedis(t)
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.Storage.TempDirectory = t.TempDir()
	store := domain.NewStore(rdb, nil)
	tracker := NewTracker(rdb, cfg.Upload.StatusExpireSeconds, nil)
	tr := stubTransport{idx: stubIndex{entries: []models.CDXEntry{
		{URL: "http://example.com/", Timestamp: "20240501120000", Mime: "text/html", Status: "200", Digest: "AAA"},
	}}}
	im := NewImporter(cfg, store, tracker, replay.NewLocator(nil), tr, nil, nil)

	build := func(meta map[string]interface{}) []byte {
		b := testutil.NewArchive(t)
		b.Marker(meta)
		b.Response("http://example.com/", "<html>x</html>")
		return b.Bytes()
	}

	// An explicit empty page list keeps detection off even though the index
	// has entries to offer.
	data := build(map[string]interface{}{
		"type": "recording", "title": "r1", "pages": []interface{}{},
	})
	result, err := im.UploadFile(ctx, "alice", bytes.NewReader(data), int64(len(data)), "a.warc", "")
	require.NoError(t, err)
	coll, err := store.GetCollectionByName(ctx, "alice", result.Coll)
	require.NoError(t, err)
	pages, err := store.ListPages(ctx, coll.ID)
	require.NoError(t, err)
	assert.Empty(t, pages)

	// Absent page metadata falls back to index detection.
	data = build(map[string]interface{}{"type": "recording", "title": "r2"})
	_, err = im.UploadFile(ctx, "bob", bytes.NewReader(data), int64(len(data)), "b.warc", "")
	require.NoError(t, err)
	coll, err = store.GetCollectionByName(ctx, "bob", "uploads")
	require.NoError(t, err)
	pages, err = store.ListPages(ctx, coll.ID)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "http://example.com/", pages[0].URL)
}

func TestUploadFile_GzippedArchive(t *testing.T) {
	im, store, _, _ := newTestImporter(t)
	ctx := context.Background()

	b := testutil.NewArchive(t)
	b.Marker(map[string]interface{}{"type": "recording", "title": "zipped"})
	b.Response("http://example.com/", "<html>z</html>")

	var gzBuf bytes.Buffer
	gw := gzip.NewWriter(&gzBuf)
	_, err := gw.Write(b.Bytes())
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	data := gzBuf.Bytes()
	result, err := im.UploadFile(ctx, "alice", bytes.NewReader(data), int64(len(data)), "a.warc.gz", "")
	require.NoError(t, err)
	waitDone(t, im, "alice", result.UploadID)

	coll, err := store.GetCollectionByName(ctx, "alice", "uploads")
	require.NoError(t, err)
	recs, err := store.ListRecordings(ctx, coll.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "zipped", recs[0].Title)
}
