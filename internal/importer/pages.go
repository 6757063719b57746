package importer

import (
	"context"
	"strings"

	"github.com/webarchive/backend/internal/index"
	"github.com/webarchive/backend/internal/models"
)

// EmptyDigest is the base32 SHA-1 digest of a zero-length payload. Captures
// with this digest carry no content worth listing as a page.
const EmptyDigest = "3I42H3S6NNFQ2MSVX7XZKYAYSCX5QBYJ"

// IsPage reports whether an index entry looks like a human-navigable page
// rather than a subresource or machine endpoint.
func IsPage(entry models.CDXEntry) bool {
	if strings.HasSuffix(entry.URL, "/robots.txt") {
		return false
	}
	if !strings.HasPrefix(entry.URL, "http://") && !strings.HasPrefix(entry.URL, "https://") {
		return false
	}
	if entry.Mime != "text/html" && entry.Mime != "text/plain" {
		return false
	}
	if entry.Status != "200" && entry.Status != models.NoStatus {
		return false
	}
	if strings.TrimPrefix(entry.Digest, "sha1:") == EmptyDigest {
		return false
	}
	if entry.Status == "200" {
		// A query string dwarfing the rest of the URL marks an API or
		// tracking call, not a page a person navigated to.
		if base, query, ok := strings.Cut(entry.URL, "?"); ok && len(query) > len(base) {
			return false
		}
	}
	return true
}

// DetectPages scans a recording's URL index and returns up to max page
// candidates; max <= 0 means unbounded.
func DetectPages(ctx context.Context, idx index.URLIndex, coll, rec string, max int) ([]models.Page, error) {
	entries, err := idx.Entries(ctx, coll, rec)
	if err != nil {
		return nil, err
	}

	var pages []models.Page
	for _, entry := range entries {
		if !IsPage(entry) {
			continue
		}
		pages = append(pages, models.Page{
			URL:       entry.URL,
			Title:     entry.URL,
			Timestamp: entry.Timestamp,
		})
		if max > 0 && len(pages) >= max {
			break
		}
	}
	return pages, nil
}
