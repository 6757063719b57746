package warc

import (
	"crypto/sha1"
	"encoding/base32"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Digest returns the base32 SHA-1 digest of a payload, the form used in
// CDX index lines. The digest of an empty payload is the well-known
// empty-payload constant the page detector filters on.
func Digest(data []byte) string {
	sum := sha1.Sum(data)
	return base32.StdEncoding.EncodeToString(sum[:])
}

// Writer emits WARC records. Used by HAR conversion and test fixtures.
type Writer struct {
	w io.Writer
}

// NewWriter wraps an output stream.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteRecord writes one record with the given type, extra headers and
// payload. WARC-Record-ID, WARC-Date and Content-Length are filled in when
// absent.
func (w *Writer) WriteRecord(recType string, headers Header, payload []byte) error {
	if headers == nil {
		headers = make(Header)
	}
	headers["WARC-Type"] = recType
	if headers.Get("WARC-Record-ID") == "" {
		headers["WARC-Record-ID"] = fmt.Sprintf("<urn:uuid:%s>", uuid.New().String())
	}
	if headers.Get("WARC-Date") == "" {
		headers["WARC-Date"] = time.Now().UTC().Format(time.RFC3339)
	}
	headers["Content-Length"] = fmt.Sprintf("%d", len(payload))

	if _, err := io.WriteString(w.w, "WARC/1.0\r\n"); err != nil {
		return err
	}

	// Deterministic header order keeps fixtures stable.
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := fmt.Fprintf(w.w, "%s: %s\r\n", name, headers[name]); err != nil {
			return err
		}
	}

	if _, err := io.WriteString(w.w, "\r\n"); err != nil {
		return err
	}
	if _, err := w.w.Write(payload); err != nil {
		return err
	}
	_, err := io.WriteString(w.w, "\r\n\r\n")
	return err
}

// WriteWarcinfo writes a warcinfo record carrying a free-form key:value
// block plus the structured json-metadata field that marks recording
// boundaries for the import scanner.
func (w *Writer) WriteWarcinfo(fields map[string]string, jsonMetadata interface{}) error {
	var body []byte
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		body = append(body, fmt.Sprintf("%s: %s\r\n", name, fields[name])...)
	}
	if jsonMetadata != nil {
		meta, err := json.Marshal(jsonMetadata)
		if err != nil {
			return fmt.Errorf("encoding json-metadata: %w", err)
		}
		body = append(body, "json-metadata: "...)
		body = append(body, meta...)
		body = append(body, "\r\n"...)
	}
	return w.WriteRecord(TypeWarcinfo, Header{"Content-Type": "application/warc-fields"}, body)
}

// WriteResponse writes a response record wrapping an HTTP message built
// from the given status, content type and body.
func (w *Writer) WriteResponse(targetURI string, date time.Time, status int, contentType string, body []byte) error {
	httpPayload := fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-Type: %s\r\nContent-Length: %d\r\n\r\n",
		status, statusText(status), contentType, len(body))
	payload := append([]byte(httpPayload), body...)

	headers := Header{
		"WARC-Target-URI":     targetURI,
		"WARC-Date":           date.UTC().Format(time.RFC3339),
		"WARC-Payload-Digest": "sha1:" + Digest(body),
		"Content-Type":        "application/http; msgtype=response",
	}
	return w.WriteRecord(TypeResponse, headers, payload)
}

func statusText(status int) string {
	switch status {
	case 200:
		return "OK"
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found"
	case 404:
		return "Not Found"
	default:
		return "Unknown"
	}
}
