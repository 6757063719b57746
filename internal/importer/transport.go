package importer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/webarchive/backend/internal/index"
)

// Transport delivers one segment's byte range to durable storage, making
// its captures queryable through PageIndex. A transport is chosen once per
// pipeline run, not per segment.
type Transport interface {
	// Deliver writes exactly seg.Length bytes starting at seg.Offset of
	// src and advances the upload's size counter on success.
	Deliver(ctx context.Context, seg *Segment, src io.ReadSeeker, user, uploadID string) error
	// PageIndex exposes the URL index delivered captures land in.
	PageIndex() index.URLIndex
	// Multiplier scales byte counts in progress accounting. Network
	// delivery reads and writes the same bytes once each and counts both
	// legs; local indexing counts one.
	Multiplier() int64
	// Detached reports whether the pipeline runs as a background task
	// after the upload id is handed back.
	Detached() bool
	// ForcePublic reports whether created collections are published
	// regardless of metadata flags.
	ForcePublic() bool
}

// RemoteTransport PUTs each segment's bytes to the record host, which
// ingests and indexes them into the redis CDXJ index.
type RemoteTransport struct {
	client       *http.Client
	recordHost   string
	pathTemplate string
	tracker      *Tracker
	pageIndex    index.URLIndex
	log          *zap.Logger
}

// NewRemoteTransport creates the network transport. pathTemplate uses the
// placeholders {record_host}, {user}, {coll}, {rec} and {upid}.
func NewRemoteTransport(recordHost, pathTemplate string, pageIndex index.URLIndex, tracker *Tracker, log *zap.Logger) *RemoteTransport {
	if log == nil {
		log = zap.NewNop()
	}
	return &RemoteTransport{
		client:       &http.Client{},
		recordHost:   recordHost,
		pathTemplate: pathTemplate,
		tracker:      tracker,
		pageIndex:    pageIndex,
		log:          log,
	}
}

func (t *RemoteTransport) segmentURL(seg *Segment, user, uploadID string) string {
	r := strings.NewReplacer(
		"{record_host}", t.recordHost,
		"{user}", user,
		"{coll}", seg.Coll.ID,
		"{rec}", seg.Rec.ID,
		"{upid}", uploadID,
	)
	return r.Replace(t.pathTemplate)
}

// Deliver PUTs the segment slice to the record host and counts both the
// read and write legs toward progress.
func (t *RemoteTransport) Deliver(ctx context.Context, seg *Segment, src io.ReadSeeker, user, uploadID string) error {
	if _, err := src.Seek(seg.Offset, io.SeekStart); err != nil {
		return fmt.Errorf("seeking to segment: %w", err)
	}

	url := t.segmentURL(seg, user, uploadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, io.LimitReader(src, seg.Length))
	if err != nil {
		return fmt.Errorf("building segment request: %w", err)
	}
	req.ContentLength = seg.Length
	req.Header.Set("Content-Type", "application/warc")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering segment: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("record host rejected segment: %s", resp.Status)
	}

	t.tracker.Advance(ctx, user, uploadID, seg.Length*t.Multiplier())
	t.log.Debug("delivered segment",
		zap.String("rec", seg.Rec.ID), zap.Int64("length", seg.Length))
	return nil
}

func (t *RemoteTransport) PageIndex() index.URLIndex { return t.pageIndex }
func (t *RemoteTransport) Multiplier() int64         { return 2 }
func (t *RemoteTransport) Detached() bool            { return true }
func (t *RemoteTransport) ForcePublic() bool         { return false }

// InplaceTransport indexes segments of an already-resident archive file
// directly through the local DuckDB indexer, with no network hop. Used by
// trusted bulk-import tooling; imported collections are always published.
type InplaceTransport struct {
	indexer *index.DuckIndex
	tracker *Tracker
	// path is the on-disk archive the indexed byte ranges refer back to.
	path string
	log  *zap.Logger
}

// NewInplaceTransport creates the local transport for one archive file.
func NewInplaceTransport(indexer *index.DuckIndex, tracker *Tracker, path string, log *zap.Logger) *InplaceTransport {
	if log == nil {
		log = zap.NewNop()
	}
	return &InplaceTransport{indexer: indexer, tracker: tracker, path: path, log: log}
}

// Deliver registers the backing file and feeds the segment's byte range to
// the indexer synchronously.
func (t *InplaceTransport) Deliver(ctx context.Context, seg *Segment, src io.ReadSeeker, user, uploadID string) error {
	params := index.Params{
		User:     user,
		Coll:     seg.Coll.ID,
		Rec:      seg.Rec.ID,
		UploadID: uploadID,
	}
	if err := t.indexer.AddWARCFile(ctx, t.path, params); err != nil {
		return err
	}

	if _, err := src.Seek(seg.Offset, io.SeekStart); err != nil {
		return fmt.Errorf("seeking to segment: %w", err)
	}
	count, err := t.indexer.AddURLsToIndex(ctx, src, params, t.path, seg.Length)
	if err != nil {
		return err
	}

	t.tracker.Advance(ctx, user, uploadID, seg.Length*t.Multiplier())
	t.log.Debug("indexed segment",
		zap.String("rec", seg.Rec.ID), zap.Int64("length", seg.Length), zap.Int("urls", count))
	return nil
}

func (t *InplaceTransport) PageIndex() index.URLIndex { return t.indexer }
func (t *InplaceTransport) Multiplier() int64         { return 1 }
func (t *InplaceTransport) Detached() bool            { return false }
func (t *InplaceTransport) ForcePublic() bool         { return true }
