package models

// NoStatus marks a CDX entry whose capture carried no HTTP status
// (revisit records, resource records).
const NoStatus = "-"

// CDXEntry is one line of a recording's URL index.
type CDXEntry struct {
	URL       string `json:"url"`
	Timestamp string `json:"timestamp"`
	Mime      string `json:"mime"`
	Status    string `json:"status"`
	Digest    string `json:"digest"`
}
