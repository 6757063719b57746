// Package testutil provides WARC fixture builders and a redis test
// harness shared across package tests.
package testutil

import (
	"bytes"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/webarchive/backend/internal/warc"
)

// NewRedis starts an in-process redis and returns a connected client.
// Both are cleaned up with the test.
func NewRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

// ArchiveBuilder assembles WARC fixture streams record by record.
type ArchiveBuilder struct {
	t   *testing.T
	buf bytes.Buffer
	w   *warc.Writer
}

// NewArchive creates an empty fixture archive.
func NewArchive(t *testing.T) *ArchiveBuilder {
	t.Helper()
	b := &ArchiveBuilder{t: t}
	b.w = warc.NewWriter(&b.buf)
	return b
}

// Marker appends a warcinfo record carrying the given json-metadata and
// returns the marker's start offset.
func (b *ArchiveBuilder) Marker(meta map[string]interface{}) int64 {
	b.t.Helper()
	offset := int64(b.buf.Len())
	if err := b.w.WriteWarcinfo(map[string]string{"software": "fixture"}, meta); err != nil {
		b.t.Fatalf("writing marker: %v", err)
	}
	return offset
}

// PlainWarcinfo appends a warcinfo record with no json-metadata field,
// which is not a segment boundary.
func (b *ArchiveBuilder) PlainWarcinfo() int64 {
	b.t.Helper()
	offset := int64(b.buf.Len())
	if err := b.w.WriteWarcinfo(map[string]string{"software": "fixture"}, nil); err != nil {
		b.t.Fatalf("writing warcinfo: %v", err)
	}
	return offset
}

// Response appends an HTTP response capture and returns its start offset.
func (b *ArchiveBuilder) Response(url string, body string) int64 {
	b.t.Helper()
	offset := int64(b.buf.Len())
	if err := b.w.WriteResponse(url, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), 200, "text/html", []byte(body)); err != nil {
		b.t.Fatalf("writing response: %v", err)
	}
	return offset
}

// SourceHinted appends a response record carrying a source URI hint.
func (b *ArchiveBuilder) SourceHinted(url, sourceURI, body string) int64 {
	b.t.Helper()
	offset := int64(b.buf.Len())
	payload := []byte("HTTP/1.1 200 OK\r\nContent-Type: text/html\r\n\r\n" + body)
	headers := warc.Header{
		"WARC-Target-URI": url,
		"WARC-Source-URI": sourceURI,
		"Content-Type":    "application/http; msgtype=response",
	}
	if err := b.w.WriteRecord(warc.TypeResponse, headers, payload); err != nil {
		b.t.Fatalf("writing hinted response: %v", err)
	}
	return offset
}

// Bytes returns the assembled archive.
func (b *ArchiveBuilder) Bytes() []byte {
	return b.buf.Bytes()
}

// Size returns the assembled archive's length.
func (b *ArchiveBuilder) Size() int64 {
	return int64(b.buf.Len())
}
