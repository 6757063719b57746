// Package warc implements streaming reading and writing of WARC containers.
//
// The reader is a forward-only iterator that tracks the absolute byte offset
// of every record, which the import pipeline relies on to slice an archive
// into per-recording byte ranges without buffering it in memory.
package warc

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Record type values used by the importer.
const (
	TypeWarcinfo = "warcinfo"
	TypeResponse = "response"
	TypeRequest  = "request"
	TypeRevisit  = "revisit"
	TypeMetadata = "metadata"
	TypeResource = "resource"
)

// Header holds a record's named fields. Lookup is case-insensitive.
type Header map[string]string

// Get returns the value for a header field, or "" if absent.
func (h Header) Get(name string) string {
	if v, ok := h[name]; ok {
		return v
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Record is a single WARC record positioned in the stream. Body is only
// valid until the next call to Next or Discard on the owning Reader.
type Record struct {
	Offset  int64
	Version string
	Headers Header
	Length  int64
	Body    io.Reader
}

// Type returns the record's WARC-Type header.
func (r *Record) Type() string {
	return r.Headers.Get("WARC-Type")
}

// Reader iterates WARC records in stream order. Each record must be fully
// consumed (via Body reads and Discard) before the next one is visible,
// since record boundaries are only discoverable by consumption.
type Reader struct {
	br   *bufio.Reader
	pos  int64
	body *bodyReader
}

// NewReader wraps a raw WARC byte stream.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 64*1024)}
}

// Pos returns the number of bytes consumed from the stream so far.
func (r *Reader) Pos() int64 {
	return r.pos
}

// Next returns the next record. Any unread remainder of the previous record
// is discarded first. Returns io.EOF at a clean end of stream.
func (r *Reader) Next() (*Record, error) {
	if r.body != nil {
		if err := r.discardCurrent(); err != nil {
			return nil, err
		}
	}

	// Tolerate stray blank lines between records.
	var line string
	var err error
	var offset int64
	for {
		offset = r.pos
		line, err = r.readLine()
		if err != nil && line == "" {
			return nil, err
		}
		if err != nil && err != io.EOF {
			return nil, err
		}
		if line != "" {
			break
		}
		if err == io.EOF {
			return nil, io.EOF
		}
	}

	if !strings.HasPrefix(line, "WARC/") {
		return nil, fmt.Errorf("invalid record header at offset %d: %q", offset, line)
	}

	rec := &Record{
		Offset:  offset,
		Version: line,
		Headers: make(Header),
	}

	for {
		line, err = r.readLine()
		if err != nil {
			return nil, fmt.Errorf("reading record headers: %w", err)
		}
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed header line at offset %d: %q", offset, line)
		}
		rec.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	length, err := strconv.ParseInt(rec.Headers.Get("Content-Length"), 10, 64)
	if err != nil || length < 0 {
		return nil, fmt.Errorf("record at offset %d has invalid Content-Length", offset)
	}
	rec.Length = length

	r.body = &bodyReader{r: r, remaining: length}
	rec.Body = r.body
	return rec, nil
}

// Discard consumes the rest of the current record, including its trailing
// separator, leaving the reader positioned at the start of the next record.
func (r *Reader) Discard() error {
	if r.body == nil {
		return nil
	}
	return r.discardCurrent()
}

func (r *Reader) discardCurrent() error {
	body := r.body
	r.body = nil

	if body.remaining > 0 {
		n, err := io.CopyN(io.Discard, r.br, body.remaining)
		r.pos += n
		if err != nil {
			return fmt.Errorf("discarding record body: %w", err)
		}
		body.remaining = 0
	}

	// Two CRLFs terminate every record.
	for i := 0; i < 2; i++ {
		line, err := r.readLine()
		if err != nil {
			return fmt.Errorf("reading record separator: %w", err)
		}
		if line != "" {
			return fmt.Errorf("expected record separator, got %q", line)
		}
	}
	return nil
}

func (r *Reader) readLine() (string, error) {
	line, err := r.br.ReadString('\n')
	r.pos += int64(len(line))
	if err != nil {
		return strings.TrimRight(line, "\r\n"), err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

type bodyReader struct {
	r         *Reader
	remaining int64
}

func (b *bodyReader) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.r.br.Read(p)
	b.r.pos += int64(n)
	b.remaining -= int64(n)
	return n, err
}
