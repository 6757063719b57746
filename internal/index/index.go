// Package index provides the URL indexes page detection reads from: a
// redis CDXJ index populated by the remote record host, and a DuckDB-backed
// local indexer used by in-place imports.
package index

import (
	"context"

	"github.com/webarchive/backend/internal/models"
)

// Params attributes indexed captures to their owner.
type Params struct {
	User     string
	Coll     string
	Rec      string
	UploadID string
}

// URLIndex exposes a recording's captured-URL index.
type URLIndex interface {
	Entries(ctx context.Context, coll, rec string) ([]models.CDXEntry, error)
}
