// Package replay resolves public-archive URLs and dispatches replay
// requests to the upstream replay host.
package replay

import "strings"

// Archive describes a known public web archive whose capture URLs can
// appear as source hints inside imported files.
type Archive struct {
	// ID keys the archive in dedup source sets, e.g. "ia".
	ID string
	// Name is the human-readable archive name.
	Name string
	// Prefix is the capture-URL prefix, e.g. "http://web.archive.org/web/".
	Prefix string
}

// DefaultArchives lists the archives recognized out of the box.
func DefaultArchives() []Archive {
	return []Archive{
		{ID: "ia", Name: "Internet Archive", Prefix: "http://web.archive.org/web/"},
		{ID: "ia", Name: "Internet Archive", Prefix: "https://web.archive.org/web/"},
		{ID: "ait", Name: "Archive-It", Prefix: "http://wayback.archive-it.org/"},
		{ID: "webcite", Name: "WebCite", Prefix: "http://www.webcitation.org/"},
	}
}

// Locator matches URLs against the known archive prefixes.
type Locator struct {
	archives []Archive
}

// NewLocator creates a locator. A nil archive list falls back to
// DefaultArchives.
func NewLocator(archives []Archive) *Locator {
	if archives == nil {
		archives = DefaultArchives()
	}
	return &Locator{archives: archives}
}

// Match is a resolved archive capture URL.
type Match struct {
	ArchiveID string
	// SourceID identifies the specific upstream source, including the
	// capture timestamp when the URL carries one, e.g. "ia:20170101000000".
	SourceID string
	// OrigURL is the originally captured URL with the archive prefix and
	// timestamp stripped.
	OrigURL string
}

// FindArchiveForURL resolves url against the known archives. Returns
// false when the URL belongs to no recognized archive.
func (l *Locator) FindArchiveForURL(url string) (Match, bool) {
	for _, a := range l.archives {
		rest, ok := strings.CutPrefix(url, a.Prefix)
		if !ok || rest == "" {
			continue
		}

		m := Match{ArchiveID: a.ID, SourceID: a.ID, OrigURL: rest}
		if ts, orig, ok := strings.Cut(rest, "/"); ok && IsTimestamp(ts) {
			m.SourceID = a.ID + ":" + ts
			m.OrigURL = orig
		}
		return m, true
	}
	return Match{}, false
}

// IsTimestamp reports whether s looks like a wayback-style capture
// timestamp, optionally followed by a replay modifier such as "id_".
func IsTimestamp(s string) bool {
	s = strings.TrimSuffix(s, "_")
	s = strings.TrimRight(s, "abcdefghijklmnopqrstuvwxyz")
	if len(s) < 4 || len(s) > 14 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
