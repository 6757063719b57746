package importer

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/webarchive/backend/internal/config"
	"github.com/webarchive/backend/internal/domain"
	"github.com/webarchive/backend/internal/har"
	"github.com/webarchive/backend/internal/models"
	"github.com/webarchive/backend/internal/replay"
)

// Precondition errors surfaced synchronously to upload callers.
var (
	ErrOutOfSpace       = errors.New("out_of_space")
	ErrNoSuchCollection = errors.New("no_such_collection")
	ErrNoArchiveData    = errors.New("no_archive_data")
)

// IncompleteUploadError reports a stream that closed short of its declared
// size.
type IncompleteUploadError struct {
	Expected int64
	Actual   int64
}

func (e *IncompleteUploadError) Error() string {
	return fmt.Sprintf("incomplete_upload: expected %d bytes, received %d", e.Expected, e.Actual)
}

// Result is the synchronous outcome of starting an upload. Progress beyond
// this point is visible only through status polling.
type Result struct {
	UploadID string `json:"upload_id"`
	User     string `json:"user"`
	Coll     string `json:"coll"`
}

// byteSource is re-readable buffered archive content.
type byteSource interface {
	Reader() (io.ReadSeeker, error)
	Close() error
}

// fileSource adapts an open archive file for in-place imports.
type fileSource struct {
	f *os.File
}

func (s fileSource) Reader() (io.ReadSeeker, error) {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return s.f, nil
}

func (s fileSource) Close() error { return s.f.Close() }

// Importer drives the archive import pipeline end to end.
type Importer struct {
	cfg     *config.AppConfig
	store   *domain.Store
	tracker *Tracker
	scanner *Scanner
	remote  Transport
	// indexer backs in-place imports; nil disables them.
	indexer IndexerFactory
	log     *zap.Logger
}

// IndexerFactory builds the in-place transport for one archive file.
type IndexerFactory func(tracker *Tracker, path string) Transport

// NewImporter wires the pipeline. remote handles network uploads; indexer
// may be nil when in-place importing is not configured.
func NewImporter(cfg *config.AppConfig, store *domain.Store, tracker *Tracker, locator *replay.Locator, remote Transport, indexer IndexerFactory, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{
		cfg:     cfg,
		store:   store,
		tracker: tracker,
		scanner: NewScanner(locator, log),
		remote:  remote,
		indexer: indexer,
		log:     log,
	}
}

// Tracker returns the status tracker for pollers.
func (im *Importer) Tracker() *Tracker {
	return im.tracker
}

// UploadFile ingests a client-submitted archive stream. The stream is
// buffered and validated synchronously; delivery runs as a background task
// and the caller polls the returned upload id for progress.
func (im *Importer) UploadFile(ctx context.Context, user string, stream io.Reader, expectedSize int64, filename, forceColl string) (*Result, error) {
	remaining, err := im.store.SizeRemaining(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("checking quota: %w", err)
	}
	if expectedSize > remaining {
		return nil, ErrOutOfSpace
	}

	if forceColl != "" {
		if _, err := im.store.GetCollectionByName(ctx, user, forceColl); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, ErrNoSuchCollection
			}
			return nil, err
		}
	}

	spool := NewSpool(im.cfg.Upload.SpoolThreshold, im.cfg.Storage.TempDirectory)
	received, err := io.Copy(spool, io.LimitReader(stream, expectedSize))
	if err != nil {
		spool.Close()
		return nil, fmt.Errorf("buffering upload: %w", err)
	}
	if received != expectedSize {
		spool.Close()
		return nil, &IncompleteUploadError{Expected: expectedSize, Actual: received}
	}

	src, size, err := im.normalize(spool, filename)
	if err != nil {
		spool.Close()
		return nil, err
	}

	return im.handleUpload(ctx, user, src, size, filename, forceColl, im.remote)
}

// ImportFile indexes an archive already on local disk, synchronously. Used
// by trusted bulk-import tooling; the resulting collections are published.
func (im *Importer) ImportFile(ctx context.Context, user, path, forceColl string) (*Result, error) {
	if im.indexer == nil {
		return nil, errors.New("in-place importing not configured")
	}

	path, err := im.materialize(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sizing archive: %w", err)
	}

	tr := im.indexer(im.tracker, path)
	result, err := im.handleUpload(ctx, user, fileSource{f: f}, fi.Size(), filepath.Base(path), forceColl, tr)
	if err != nil {
		return nil, err
	}

	if err := im.store.AddUserSize(ctx, user, fi.Size()); err != nil {
		im.log.Warn("charging user size", zap.String("user", user), zap.Error(err))
	}
	return result, nil
}

// MultifileUpload imports several local archive files under one user. A
// failing file is logged and skipped.
func (im *Importer) MultifileUpload(ctx context.Context, user string, paths []string) []*Result {
	results := make([]*Result, 0, len(paths))
	for _, path := range paths {
		result, err := im.ImportFile(ctx, user, path, "")
		if err != nil {
			im.log.Error("skipping archive file",
				zap.String("user", user), zap.String("path", path), zap.Error(err))
			continue
		}
		results = append(results, result)
	}
	return results
}

// handleUpload is the shared pipeline core: scan, build domain objects,
// initialize status, then deliver either inline or detached.
func (im *Importer) handleUpload(ctx context.Context, user string, src byteSource, size int64, filename, forceColl string, tr Transport) (*Result, error) {
	rs, err := src.Reader()
	if err != nil {
		src.Close()
		return nil, err
	}
	segments, _, err := im.scanner.Scan(rs, size)
	if err != nil {
		src.Close()
		return nil, err
	}
	if len(segments) == 0 {
		src.Close()
		return nil, ErrNoArchiveData
	}

	coll, err := im.buildDomainObjects(ctx, user, segments, forceColl, filename, tr.ForcePublic())
	if err != nil {
		src.Close()
		return nil, err
	}

	uploadID := im.tracker.Initialize(ctx, user,
		size*tr.Multiplier(), len(segments), filename, coll.Name, coll.Title)

	im.log.Info("upload started",
		zap.String("user", user), zap.String("upload_id", uploadID),
		zap.String("coll", coll.Name), zap.Int("segments", len(segments)),
		zap.Int64("size", size))

	if tr.Detached() {
		go im.runUpload(context.Background(), user, uploadID, src, segments, size, tr)
	} else {
		im.runUpload(ctx, user, uploadID, src, segments, size, tr)
	}

	return &Result{UploadID: uploadID, User: user, Coll: coll.Name}, nil
}

// buildDomainObjects creates the collection/recording graph the segments
// map onto, before any bytes move. Returns the primary collection.
func (im *Importer) buildDomainObjects(ctx context.Context, user string, segments []*Segment, forceColl, filename string, forcePublic bool) (*models.Collection, error) {
	var coll *models.Collection
	var err error

	forced := forceColl != ""
	if forced {
		coll, err = im.store.GetCollectionByName(ctx, user, forceColl)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, ErrNoSuchCollection
			}
			return nil, err
		}
	}

	var first *models.Collection
	for _, seg := range segments {
		if seg.Info.Type == TypeCollection {
			if !forced {
				coll, err = im.store.CreateCollection(ctx, user, "", domain.CollectionOpts{
					Title:       seg.Info.Title,
					Desc:        seg.Info.Desc,
					Public:      seg.Info.Public || forcePublic,
					PublicIndex: seg.Info.PublicIndex || forcePublic,
					AllowDupe:   true,
				})
				if err != nil {
					return nil, fmt.Errorf("creating collection: %w", err)
				}
			}
			seg.Coll = coll
			if first == nil {
				first = coll
			}
			continue
		}

		if coll == nil {
			coll, err = im.defaultCollection(ctx, user, filename, forcePublic)
			if err != nil {
				return nil, err
			}
		}
		seg.Coll = coll
		if first == nil {
			first = coll
		}

		rec, err := im.store.CreateRecording(ctx, coll.ID,
			seg.Info.Title, seg.Info.Desc, seg.Info.Type, seg.Info.RemoteArchives())
		if err != nil {
			return nil, fmt.Errorf("creating recording: %w", err)
		}
		seg.Rec = rec
	}
	return first, nil
}

// defaultCollection loads or creates the fallback collection for archives
// carrying no collection metadata of their own.
func (im *Importer) defaultCollection(ctx context.Context, user, filename string, forcePublic bool) (*models.Collection, error) {
	dc := im.cfg.Upload.DefaultColl
	coll, err := im.store.GetCollectionByName(ctx, user, dc.Name)
	if err == nil {
		return coll, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	coll, err = im.store.CreateCollection(ctx, user, dc.Name, domain.CollectionOpts{
		Title:       dc.Title,
		Desc:        strings.ReplaceAll(dc.Desc, "{filename}", filename),
		Public:      dc.Public || forcePublic,
		PublicIndex: dc.PublicIndex || forcePublic,
	})
	if err != nil {
		return nil, fmt.Errorf("creating default collection: %w", err)
	}
	return coll, nil
}

// runUpload delivers every segment in offset order, folding inter-segment
// gaps and the unconsumed tail into progress as padding. A failing segment
// is marked and skipped; the pipeline always finalizes.
func (im *Importer) runUpload(ctx context.Context, user, uploadID string, src byteSource, segments []*Segment, size int64, tr Transport) {
	defer src.Close()
	defer im.tracker.Finalize(ctx, user, uploadID)

	rs, err := src.Reader()
	if err != nil {
		im.log.Error("reopening upload buffer", zap.String("upload_id", uploadID), zap.Error(err))
		return
	}

	pageIDMap := make(map[string]string)
	var lastEnd int64

	for _, seg := range segments {
		// Segments without a recording deliver nothing; their span folds
		// into the next gap or the tail.
		if seg.Rec != nil {
			if gap := seg.Offset - lastEnd; gap > 0 {
				im.tracker.Advance(ctx, user, uploadID, gap*tr.Multiplier())
			}
			lastEnd = seg.Offset + seg.Length
		}

		im.processSegment(ctx, user, uploadID, seg, rs, tr, pageIDMap)
		im.tracker.CompleteSegment(ctx, user, uploadID)
	}

	if tail := size - lastEnd; tail > 0 {
		im.tracker.Advance(ctx, user, uploadID, tail*tr.Multiplier())
	}

	im.importLists(ctx, segments, pageIDMap)

	im.log.Info("upload finished",
		zap.String("user", user), zap.String("upload_id", uploadID))
}

// processSegment delivers one segment and imports its pages. Zero-length
// segments skip delivery but still get pages and timestamps. Errors are
// contained here; the caller moves on to the next segment regardless.
func (im *Importer) processSegment(ctx context.Context, user, uploadID string, seg *Segment, rs io.ReadSeeker, tr Transport, pageIDMap map[string]string) {
	if seg.Rec == nil {
		return
	}

	if seg.Length > 0 {
		if err := tr.Deliver(ctx, seg, rs, user, uploadID); err != nil {
			im.log.Error("segment delivery failed",
				zap.String("upload_id", uploadID), zap.String("rec", seg.Rec.ID),
				zap.Int64("offset", seg.Offset), zap.Int64("length", seg.Length),
				zap.Error(err))
			im.tracker.MarkSegmentFailed(ctx, user, uploadID)
			return
		}
	}

	// A nil page list means none were supplied; an explicit empty list
	// suppresses detection.
	pages := seg.Info.Pages
	if pages == nil && seg.Length > 0 {
		detected, err := DetectPages(ctx, tr.PageIndex(), seg.Coll.ID, seg.Rec.ID, im.cfg.Upload.MaxDetectPages)
		if err != nil {
			im.log.Warn("page detection failed",
				zap.String("rec", seg.Rec.ID), zap.Error(err))
		}
		pages = detected
	}
	if len(pages) > 0 {
		idMap, err := im.store.ImportPages(ctx, seg.Coll.ID, pages, seg.Rec.ID)
		if err != nil {
			im.log.Warn("page import failed",
				zap.String("rec", seg.Rec.ID), zap.Error(err))
		}
		for oldID, newID := range idMap {
			pageIDMap[oldID] = newID
		}
	}

	if err := im.store.SetRecordingTimes(ctx, seg.Rec.ID,
		seg.Info.CreatedAt, seg.Info.RecordedAt, seg.Info.UpdatedAt); err != nil {
		im.log.Warn("stamping recording times",
			zap.String("rec", seg.Rec.ID), zap.Error(err))
	}
}

// importLists creates collection-level bookmark lists once all segments
// are in, re-keying bookmark page references through the page-id map.
func (im *Importer) importLists(ctx context.Context, segments []*Segment, pageIDMap map[string]string) {
	for _, seg := range segments {
		if seg.Info.Type != TypeCollection || seg.Coll == nil {
			continue
		}

		for _, list := range seg.Info.Lists {
			for i := range list.Bookmarks {
				if newID, ok := pageIDMap[list.Bookmarks[i].PageID]; ok {
					list.Bookmarks[i].PageID = newID
				}
			}
			if _, err := im.store.CreateBookmarkList(ctx, seg.Coll.ID, list); err != nil {
				im.log.Warn("bookmark list import failed",
					zap.String("coll", seg.Coll.ID), zap.String("list", list.Title),
					zap.Error(err))
			}
		}

		if err := im.store.SetCollectionTimes(ctx, seg.Coll.ID,
			seg.Info.CreatedAt, seg.Info.UpdatedAt); err != nil {
			im.log.Warn("stamping collection times",
				zap.String("coll", seg.Coll.ID), zap.Error(err))
		}
	}
}

// normalize converts spooled uploads in foreign formats into plain WARC
// bytes: gzipped archives are inflated and browser-history exports are
// converted, so every downstream offset refers to one consistent stream.
func (im *Importer) normalize(spool *Spool, filename string) (byteSource, int64, error) {
	rs, err := spool.Reader()
	if err != nil {
		return nil, 0, err
	}

	switch {
	case strings.HasSuffix(filename, ".har"):
		out := NewSpool(im.cfg.Upload.SpoolThreshold, im.cfg.Storage.TempDirectory)
		if _, err := har.Convert(rs, out, harTitle(filename)); err != nil {
			out.Close()
			return nil, 0, fmt.Errorf("converting har: %w", err)
		}
		spool.Close()
		return out, out.Size(), nil

	case isGzipped(rs, filename):
		gz, err := gzip.NewReader(rs)
		if err != nil {
			return nil, 0, fmt.Errorf("opening gzip stream: %w", err)
		}
		out := NewSpool(im.cfg.Upload.SpoolThreshold, im.cfg.Storage.TempDirectory)
		if _, err := io.Copy(out, gz); err != nil {
			out.Close()
			return nil, 0, fmt.Errorf("inflating archive: %w", err)
		}
		spool.Close()
		return out, out.Size(), nil
	}

	return spool, spool.Size(), nil
}

// materialize rewrites a local .har or gzipped archive into a plain WARC
// file the indexer can reference by path. Plain WARC paths pass through.
func (im *Importer) materialize(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	isHar := strings.HasSuffix(path, ".har")
	if !isHar && !isGzipped(f, path) {
		return path, nil
	}

	out, err := os.CreateTemp(im.cfg.Storage.TempDirectory, "import-*.warc")
	if err != nil {
		return "", fmt.Errorf("creating converted archive: %w", err)
	}

	if isHar {
		_, err = har.Convert(f, out, harTitle(path))
	} else {
		var gz *gzip.Reader
		if gz, err = gzip.NewReader(f); err == nil {
			_, err = io.Copy(out, gz)
		}
	}
	if err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", fmt.Errorf("converting archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return out.Name(), nil
}

// isGzipped sniffs the gzip magic, falling back to the filename when the
// stream cannot be rewound.
func isGzipped(rs io.ReadSeeker, filename string) bool {
	var magic [2]byte
	if _, err := io.ReadFull(rs, magic[:]); err != nil {
		rs.Seek(0, io.SeekStart)
		return strings.HasSuffix(filename, ".gz")
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return strings.HasSuffix(filename, ".gz")
	}
	return magic[0] == 0x1f && magic[1] == 0x8b
}

func harTitle(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
