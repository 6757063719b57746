package importer

import (
	"encoding/json"
	"io"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/webarchive/backend/internal/models"
	"github.com/webarchive/backend/internal/replay"
	"github.com/webarchive/backend/internal/warc"
)

// Segment metadata types carried in an archive's json-metadata records.
const (
	TypeCollection = "collection"
	TypeRecording  = "recording"
)

// DefaultRecordingTitle names segments whose metadata carries no title,
// including the implicit segment of archives with no leading marker.
const DefaultRecordingTitle = "Uploaded Recording"

// SegmentInfo is the parsed metadata of one segment boundary record.
type SegmentInfo struct {
	Type        string
	Title       string
	Desc        string
	Public      bool
	PublicIndex bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	RecordedAt  time.Time
	Pages       []models.Page
	Lists       []models.ListData

	// sources collects remote-archive source ids resolved from capture
	// hints inside the segment. Nil for implicit segments, which never
	// collect hints.
	sources map[string]struct{}
}

// RemoteArchives returns the collected source ids in sorted order.
func (si *SegmentInfo) RemoteArchives() []string {
	if len(si.sources) == 0 {
		return nil
	}
	ids := make([]string, 0, len(si.sources))
	for id := range si.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Segment is one logical recording's byte range of the archive. Offset is
// negative until the record following the boundary marker fixes it; a
// segment still unpositioned at end of stream is dropped as incomplete.
type Segment struct {
	Info   *SegmentInfo
	Offset int64
	Length int64

	// Set by the orchestrator once domain objects exist.
	Coll *models.Collection
	Rec  *models.Recording
}

// metadataJSON is the wire shape of the json-metadata field. Timestamps
// are epoch seconds.
type metadataJSON struct {
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	Desc        string            `json:"desc"`
	Public      bool              `json:"public"`
	PublicIndex bool              `json:"public_index"`
	CreatedAt   int64             `json:"created_at"`
	UpdatedAt   int64             `json:"updated_at"`
	RecordedAt  int64             `json:"recorded_at"`
	Pages       []models.Page     `json:"pages"`
	Lists       []models.ListData `json:"lists"`
}

// Scanner splits a WARC stream into ordered segments by watching for
// warcinfo records that carry a json-metadata field. It runs a two-state
// machine: no segment open, or one segment open whose start offset is
// fixed by the next record and whose end is fixed by the next marker or
// the end of the stream.
type Scanner struct {
	locator *replay.Locator
	log     *zap.Logger
}

// NewScanner creates a scanner resolving remote-source hints through
// locator. A nil locator disables hint resolution.
func NewScanner(locator *replay.Locator, log *zap.Logger) *Scanner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{locator: locator, log: log}
}

// Scan consumes up to expectedSize bytes of r and returns the segments in
// stream order plus the number of bytes actually consumed. Corruption in
// the tail is drained, not fatal: segments found before the bad record are
// still returned.
func (s *Scanner) Scan(r io.Reader, expectedSize int64) ([]*Segment, int64, error) {
	limited := io.LimitReader(r, expectedSize)
	wr := warc.NewReader(limited)

	var segments []*Segment
	var current *Segment
	var endPos int64
	first := true

	for {
		cleanPos := wr.Pos()
		rec, err := wr.Next()
		if err == io.EOF {
			endPos = wr.Pos()
			break
		}
		if err != nil {
			// Close the open segment at the last clean record boundary;
			// the malformed remainder is drained below, not attributed.
			s.log.Warn("stopping archive scan on malformed record",
				zap.Int64("offset", cleanPos), zap.Error(err))
			endPos = cleanPos
			io.Copy(io.Discard, limited)
			break
		}

		start := rec.Offset
		if current != nil && current.Offset < 0 {
			current.Offset = start
		}

		var info *SegmentInfo
		if rec.Type() == warc.TypeWarcinfo {
			info = s.parseBoundary(rec)
		}

		switch {
		case info != nil:
			if current != nil && current.Offset >= 0 {
				current.Length = start - current.Offset
				segments = append(segments, current)
			}
			current = &Segment{Info: info, Offset: -1}

		case first:
			// Archives whose first record is not a marker still yield one
			// segment, including those opening with a plain warcinfo.
			current = &Segment{
				Info:   &SegmentInfo{Type: TypeRecording, Title: DefaultRecordingTitle},
				Offset: 0,
			}
			s.collectSourceHint(current.Info, rec)

		default:
			if current != nil {
				s.collectSourceHint(current.Info, rec)
			}
		}

		if err := wr.Discard(); err != nil {
			s.log.Warn("stopping archive scan on truncated record",
				zap.Int64("offset", start), zap.Error(err))
			endPos = start
			io.Copy(io.Discard, limited)
			break
		}
		first = false
	}

	if current != nil && current.Offset >= 0 && endPos >= current.Offset {
		current.Length = endPos - current.Offset
		segments = append(segments, current)
	}

	// Drain anything past the last parseable record so the caller's stream
	// position matches the declared size.
	n, _ := io.Copy(io.Discard, limited)
	return segments, wr.Pos() + n, nil
}

// parseBoundary reads a warcinfo record's body and extracts its
// json-metadata field. Returns nil for warcinfo records without one; they
// are not segment boundaries.
func (s *Scanner) parseBoundary(rec *warc.Record) *SegmentInfo {
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		s.log.Warn("unreadable warcinfo record", zap.Int64("offset", rec.Offset), zap.Error(err))
		return nil
	}

	var raw string
	for _, line := range strings.Split(string(body), "\n") {
		name, value, ok := strings.Cut(line, ":")
		if ok && strings.TrimSpace(name) == "json-metadata" {
			raw = strings.TrimSpace(value)
			break
		}
	}
	if raw == "" {
		s.log.Debug("warcinfo record without json-metadata, ignoring",
			zap.Int64("offset", rec.Offset))
		return nil
	}

	var meta metadataJSON
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		s.log.Warn("unparseable json-metadata, ignoring",
			zap.Int64("offset", rec.Offset), zap.Error(err))
		return nil
	}

	info := &SegmentInfo{
		Type:        meta.Type,
		Title:       meta.Title,
		Desc:        meta.Desc,
		Public:      meta.Public,
		PublicIndex: meta.PublicIndex,
		Pages:       meta.Pages,
		Lists:       meta.Lists,
		sources:     make(map[string]struct{}),
	}
	if info.Type == "" {
		info.Type = TypeRecording
	}
	if info.Title == "" {
		info.Title = DefaultRecordingTitle
	}
	if meta.CreatedAt > 0 {
		info.CreatedAt = time.Unix(meta.CreatedAt, 0).UTC()
	}
	if meta.UpdatedAt > 0 {
		info.UpdatedAt = time.Unix(meta.UpdatedAt, 0).UTC()
	}
	if meta.RecordedAt > 0 {
		info.RecordedAt = time.Unix(meta.RecordedAt, 0).UTC()
	}
	return info
}

// collectSourceHint resolves a content record's source URI against the
// known public archives and adds the source id to the open segment's set.
// Implicit segments carry no set and collect nothing.
func (s *Scanner) collectSourceHint(info *SegmentInfo, rec *warc.Record) {
	if s.locator == nil || info == nil || info.sources == nil {
		return
	}
	uri := rec.Headers.Get("WARC-Source-URI")
	if uri == "" {
		return
	}
	if match, ok := s.locator.FindArchiveForURL(uri); ok {
		info.sources[match.SourceID] = struct{}{}
	}
}
