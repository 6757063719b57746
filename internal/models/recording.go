package models

import "time"

// Recording is one logical capture session inside a collection. Imported
// recordings map 1:1 to a byte range of the uploaded archive.
type Recording struct {
	ID         string    `json:"id"`
	Collection string    `json:"collection"`
	Title      string    `json:"title"`
	Desc       string    `json:"desc,omitempty"`
	RecType    string    `json:"rec_type,omitempty"`
	// Remote archive source ids attached from WARC-Source-URI hints.
	RemoteArchives []string  `json:"ra,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	RecordedAt     time.Time `json:"recorded_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Page is a human-navigable top-level capture, distinguished from embedded
// subresources by the page detector's heuristics.
type Page struct {
	ID        string `json:"id" msgpack:"id"`
	URL       string `json:"url" msgpack:"url"`
	Title     string `json:"title,omitempty" msgpack:"title"`
	Timestamp string `json:"timestamp,omitempty" msgpack:"timestamp"`
	Recording string `json:"rec,omitempty" msgpack:"rec"`
}
