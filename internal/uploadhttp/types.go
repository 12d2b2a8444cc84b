package uploadhttp

import "time"

// UploadResponse is returned by POST /upload.
type UploadResponse struct {
	ID      string `json:"id"`
	PlayURL string `json:"playUrl"`
}

// RecentItem is one row of GET /recent.
type RecentItem struct {
	ID    string    `json:"id"`
	MTime time.Time `json:"mtime"`
	URL   string    `json:"url"`
}

// UploadDetail is returned by GET /uploads/{id}.
type UploadDetail struct {
	ID            string    `json:"id"`
	MTime         time.Time `json:"mtime"`
	URL           string    `json:"url"`
	EntryPath     string    `json:"entryPath"`
	Format        string    `json:"format,omitempty"`
	ArchiveSHA256 string    `json:"archiveSha256,omitempty"`
	ArchiveBytes  int64     `json:"archiveBytes,omitempty"`
	Files         int       `json:"files"`
	ExtractedSize int64     `json:"extractedBytes"`
	ExpiresAt     time.Time `json:"expiresAt,omitzero"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
