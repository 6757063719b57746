// Package har converts HTTP Archive (HAR) browser exports into WARC
// streams the import pipeline can consume.
package har

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/webarchive/backend/internal/warc"
)

type harFile struct {
	Log harLog `json:"log"`
}

type harLog struct {
	Creator harCreator `json:"creator"`
	Entries []harEntry `json:"entries"`
}

type harCreator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type harEntry struct {
	StartedDateTime string      `json:"startedDateTime"`
	Request         harRequest  `json:"request"`
	Response        harResponse `json:"response"`
}

type harRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

type harResponse struct {
	Status  int        `json:"status"`
	Content harContent `json:"content"`
}

type harContent struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
	Encoding string `json:"encoding"`
}

// Convert reads a HAR document and writes an equivalent WARC stream,
// opening with a warcinfo metadata record so the import scanner sees one
// titled recording. Returns the number of captures written.
func Convert(r io.Reader, w io.Writer, title string) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("reading har: %w", err)
	}

	var har harFile
	if err := json.Unmarshal(data, &har); err != nil {
		return 0, fmt.Errorf("parsing har: %w", err)
	}

	writer := warc.NewWriter(w)

	software := har.Log.Creator.Name
	if software == "" {
		software = "har-import"
	}
	meta := map[string]interface{}{
		"type":  "recording",
		"title": title,
	}
	if err := writer.WriteWarcinfo(map[string]string{"software": software}, meta); err != nil {
		return 0, fmt.Errorf("writing warcinfo: %w", err)
	}

	count := 0
	for _, entry := range har.Log.Entries {
		if entry.Request.URL == "" {
			continue
		}

		body := []byte(entry.Response.Content.Text)
		if entry.Response.Content.Encoding == "base64" {
			decoded, err := base64.StdEncoding.DecodeString(entry.Response.Content.Text)
			if err == nil {
				body = decoded
			}
		}

		date, err := time.Parse(time.RFC3339, entry.StartedDateTime)
		if err != nil {
			date = time.Now().UTC()
		}

		mime := entry.Response.Content.MimeType
		if mime == "" {
			mime = "application/octet-stream"
		}
		status := entry.Response.Status
		if status == 0 {
			status = 200
		}

		if err := writer.WriteResponse(entry.Request.URL, date, status, mime, body); err != nil {
			return count, fmt.Errorf("writing response for %s: %w", entry.Request.URL, err)
		}
		count++
	}

	return count, nil
}
