package models

// UploadStatus is the snapshot returned to polling clients while an archive
// import runs. Size counters follow the transport multiplier convention:
// they are a monotonic progress indicator, not an exact byte percentage.
type UploadStatus struct {
	User           string `json:"user"`
	UploadID       string `json:"upload_id"`
	Filename       string `json:"filename,omitempty"`
	Coll           string `json:"coll,omitempty"`
	CollTitle      string `json:"coll_title,omitempty"`
	Size           int64  `json:"size"`
	TotalSize      int64  `json:"total_size"`
	Files          int    `json:"files"`
	TotalFiles     int    `json:"total_files"`
	FailedSegments int    `json:"failed_segments,omitempty"`
	Done           bool   `json:"done"`
}
