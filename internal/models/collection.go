package models

import "time"

// Collection is a user-owned group of recordings with an optional public
// listing and bookmark lists imported from uploaded archives.
type Collection struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"` // slug, unique per user
	Owner       string    `json:"owner"`
	Title       string    `json:"title"`
	Desc        string    `json:"desc,omitempty"`
	Public      bool      `json:"public"`
	PublicIndex bool      `json:"public_index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BookmarkList groups bookmarks under a collection.
type BookmarkList struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Desc   string `json:"desc,omitempty"`
	Public bool   `json:"public"`
}

// Bookmark points at a page within a collection. PageID refers to a page
// assigned during import; bookmarks from uploaded archives are re-keyed
// through the importer's page-id map.
type Bookmark struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	PageID    string `json:"page_id,omitempty"`
}

// ListData is the raw list payload carried in an archive's collection
// metadata, consumed once after all segments are imported.
type ListData struct {
	Title     string     `json:"title"`
	Desc      string     `json:"desc,omitempty"`
	Public    bool       `json:"public,omitempty"`
	Bookmarks []Bookmark `json:"bookmarks,omitempty"`
}
