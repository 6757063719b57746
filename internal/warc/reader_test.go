package warc

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T) ([]byte, []string) {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteWarcinfo(map[string]string{"software": "test"}, map[string]string{"type": "recording"}))
	date := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, w.WriteResponse("http://example.com/", date, 200, "text/html", []byte("<html>hi</html>")))
	require.NoError(t, w.WriteResponse("http://example.com/two", date, 404, "text/html", []byte("nope")))

	return buf.Bytes(), []string{TypeWarcinfo, TypeResponse, TypeResponse}
}

func TestReader_IteratesRecordsInOrder(t *testing.T) {
	data, wantTypes := writeFixture(t)
	r := NewReader(bytes.NewReader(data))

	var gotTypes []string
	var offsets []int64
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		gotTypes = append(gotTypes, rec.Type())
		offsets = append(offsets, rec.Offset)
		require.NoError(t, r.Discard())
	}

	assert.Equal(t, wantTypes, gotTypes)
	assert.Equal(t, int64(0), offsets[0])
	for i := 1; i < len(offsets); i++ {
		assert.Greater(t, offsets[i], offsets[i-1])
	}
	assert.Equal(t, int64(len(data)), r.Pos())
}

func TestReader_BodyBoundedByContentLength(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	date := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, w.WriteResponse("http://example.com/", date, 200, "text/plain", []byte("payload")))

	r := NewReader(bytes.NewReader(buf.Bytes()))
	rec, err := r.Next()
	require.NoError(t, err)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Len(t, body, int(rec.Length))
	assert.Contains(t, string(body), "payload")

	// Fully consumed record leaves the reader at a clean EOF.
	require.NoError(t, r.Discard())
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReader_SkipsUnreadBodyOnNext(t *testing.T) {
	data, _ := writeFixture(t)
	r := NewReader(bytes.NewReader(data))

	_, err := r.Next()
	require.NoError(t, err)

	// No explicit Discard: Next must consume the remainder itself.
	rec, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, TypeResponse, rec.Type())
}

func TestReader_RejectsGarbage(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte("this is not a warc\r\n")))
	_, err := r.Next()
	assert.Error(t, err)
}

func TestDigest_EmptyPayload(t *testing.T) {
	assert.Equal(t, "3I42H3S6NNFQ2MSVX7XZKYAYSCX5QBYJ", Digest(nil))
}

func TestHeader_CaseInsensitiveGet(t *testing.T) {
	h := Header{"WARC-Type": "response"}
	assert.Equal(t, "response", h.Get("warc-type"))
	assert.Equal(t, "", h.Get("missing"))
}
