package har

import (
	"bytes"
	"encoding/base64"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webarchive/backend/internal/warc"
)

const fixture = `{
  "log": {
    "creator": {"name": "browser", "version": "1.0"},
    "entries": [
      {
        "startedDateTime": "2024-05-01T12:00:00Z",
        "request": {"method": "GET", "url": "http://example.com/"},
        "response": {"status": 200, "content": {"mimeType": "text/html", "text": "<html>hi</html>"}}
      },
      {
        "startedDateTime": "2024-05-01T12:00:01Z",
        "request": {"method": "GET", "url": "http://example.com/logo.png"},
        "response": {"status": 200, "content": {"mimeType": "image/png", "text": "aGVsbG8=", "encoding": "base64"}}
      }
    ]
  }
}`

func TestConvert_ProducesScannableWARC(t *testing.T) {
	var out bytes.Buffer
	count, err := Convert(bytes.NewReader([]byte(fixture)), &out, "my-export")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	r := warc.NewReader(bytes.NewReader(out.Bytes()))

	first, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, warc.TypeWarcinfo, first.Type())
	body, err := io.ReadAll(first.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "json-metadata")
	assert.Contains(t, string(body), "my-export")

	second, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, warc.TypeResponse, second.Type())
	assert.Equal(t, "http://example.com/", second.Headers.Get("WARC-Target-URI"))
	payload, err := io.ReadAll(second.Body)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "<html>hi</html>")

	third, err := r.Next()
	require.NoError(t, err)
	payload, err = io.ReadAll(third.Body)
	require.NoError(t, err)
	decoded, _ := base64.StdEncoding.DecodeString("aGVsbG8=")
	assert.True(t, bytes.HasSuffix(payload, decoded))

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestConvert_RejectsInvalidJSON(t *testing.T) {
	var out bytes.Buffer
	_, err := Convert(bytes.NewReader([]byte("not json")), &out, "x")
	assert.Error(t, err)
}

func TestConvert_SkipsEntriesWithoutURL(t *testing.T) {
	doc := `{"log": {"entries": [{"request": {"url": ""}, "response": {"status": 200, "content": {}}}]}}`
	var out bytes.Buffer
	count, err := Convert(bytes.NewReader([]byte(doc)), &out, "x")
	require.NoError(t, err)
	assert.Zero(t, count)
}
