package index

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/webarchive/backend/internal/models"
	"github.com/webarchive/backend/internal/warc"
)

// DuckIndex is the local URL index used by in-place imports. Captures are
// rows in an embedded DuckDB database keyed by collection and recording,
// with a companion table tracking which archive files back them.
type DuckIndex struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenDuckIndex opens (or creates) the index database at path. An empty
// path opens an in-memory database.
func OpenDuckIndex(path string, log *zap.Logger) (*DuckIndex, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cdx (
			coll VARCHAR NOT NULL,
			rec VARCHAR NOT NULL,
			url VARCHAR NOT NULL,
			timestamp VARCHAR NOT NULL,
			mime VARCHAR,
			status VARCHAR,
			digest VARCHAR,
			offset BIGINT,
			length BIGINT,
			filename VARCHAR
		)`,
		`CREATE TABLE IF NOT EXISTS warc_files (
			filename VARCHAR NOT NULL,
			usr VARCHAR NOT NULL,
			coll VARCHAR NOT NULL,
			rec VARCHAR,
			upload_id VARCHAR,
			added_at TIMESTAMP DEFAULT current_timestamp
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("initializing index schema: %w", err)
		}
	}
	return &DuckIndex{db: db, log: log}, nil
}

// Close releases the underlying database.
func (d *DuckIndex) Close() error {
	return d.db.Close()
}

// AddWARCFile registers an archive file as a backing source for the
// recordings indexed out of it.
func (d *DuckIndex) AddWARCFile(ctx context.Context, filename string, params Params) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO warc_files (filename, usr, coll, rec, upload_id) VALUES (?, ?, ?, ?, ?)`,
		filename, params.User, params.Coll, params.Rec, params.UploadID)
	if err != nil {
		return fmt.Errorf("registering warc file: %w", err)
	}
	return nil
}

// AddURLsToIndex reads one archive segment from r and indexes its captures
// under params. The reader must be positioned at the segment start and is
// consumed up to length bytes. Returns the number of captures indexed.
func (d *DuckIndex) AddURLsToIndex(ctx context.Context, r io.Reader, params Params, filename string, length int64) (int, error) {
	wr := warc.NewReader(io.LimitReader(r, length))

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting index transaction: %w", err)
	}
	defer tx.Rollback()

	count := 0
	for {
		rec, err := wr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Index what parsed cleanly; the scanner already reported
			// the segment boundaries.
			d.log.Warn("stopping index scan on parse error",
				zap.String("filename", filename), zap.Error(err))
			break
		}

		entry, ok := entryFromRecord(rec)
		if !ok {
			if err := wr.Discard(); err != nil {
				break
			}
			continue
		}
		if err := wr.Discard(); err != nil {
			break
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO cdx (coll, rec, url, timestamp, mime, status, digest, offset, length, filename)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			params.Coll, params.Rec,
			entry.URL, entry.Timestamp, entry.Mime, entry.Status, entry.Digest,
			rec.Offset, rec.Length, filename)
		if err != nil {
			return count, fmt.Errorf("inserting index row: %w", err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return count, fmt.Errorf("committing index rows: %w", err)
	}
	return count, nil
}

// Entries returns the recording's index in insertion order.
func (d *DuckIndex) Entries(ctx context.Context, coll, rec string) ([]models.CDXEntry, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT url, timestamp, mime, status, digest FROM cdx WHERE coll = ? AND rec = ?`,
		coll, rec)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}
	defer rows.Close()

	var entries []models.CDXEntry
	for rows.Next() {
		var e models.CDXEntry
		if err := rows.Scan(&e.URL, &e.Timestamp, &e.Mime, &e.Status, &e.Digest); err != nil {
			return nil, fmt.Errorf("scanning index row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// entryFromRecord builds a CDX entry for indexable record types. Response
// records take mime and status from the embedded HTTP message; resource
// records use the record's own Content-Type; revisits carry no payload.
func entryFromRecord(rec *warc.Record) (models.CDXEntry, bool) {
	entry := models.CDXEntry{
		URL:       rec.Headers.Get("WARC-Target-URI"),
		Timestamp: cdxTimestamp(rec.Headers.Get("WARC-Date")),
		Status:    models.NoStatus,
		Digest:    strings.TrimPrefix(rec.Headers.Get("WARC-Payload-Digest"), "sha1:"),
	}
	if entry.URL == "" {
		return entry, false
	}

	switch rec.Type() {
	case warc.TypeResponse:
		status, mime := parseHTTPHead(rec.Body)
		entry.Status = status
		entry.Mime = mime
	case warc.TypeResource:
		entry.Mime = rec.Headers.Get("Content-Type")
	case warc.TypeRevisit:
		entry.Mime = "warc/revisit"
	default:
		return entry, false
	}
	return entry, true
}

// parseHTTPHead extracts the status code and content type from an HTTP
// response message head. Returns "-" / "" when the head is unreadable.
func parseHTTPHead(body io.Reader) (status, mime string) {
	status = models.NoStatus
	br := bufio.NewReader(body)

	line, err := br.ReadString('\n')
	if err != nil && line == "" {
		return status, mime
	}
	parts := strings.SplitN(strings.TrimSpace(line), " ", 3)
	if len(parts) >= 2 && strings.HasPrefix(parts[0], "HTTP/") {
		status = parts[1]
	}

	for {
		line, err = br.ReadString('\n')
		if err != nil && line == "" {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if name, value, ok := strings.Cut(line, ":"); ok {
			if strings.EqualFold(strings.TrimSpace(name), "Content-Type") {
				mime, _, _ = strings.Cut(strings.TrimSpace(value), ";")
				mime = strings.TrimSpace(mime)
			}
		}
		if err != nil {
			break
		}
	}
	return status, mime
}

// cdxTimestamp converts a WARC-Date into the 14-digit index timestamp.
func cdxTimestamp(warcDate string) string {
	t, err := time.Parse(time.RFC3339, warcDate)
	if err != nil {
		return time.Now().UTC().Format("20060102150405")
	}
	return t.UTC().Format("20060102150405")
}
