package uploads

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned for unknown ids and missing entry documents.
	ErrNotFound = errors.New("uploads: not found")
	// ErrExists is returned when registering an id twice.
	ErrExists = errors.New("uploads: id already registered")
)

// State is an upload's lifecycle state. Only Published uploads are visible
// through Get and ListRecent.
type State string

const (
	StateExtracting State = "extracting"
	StateLocated    State = "located"
	StatePublished  State = "published"
	StateFailed     State = "failed"
	StateExpired    State = "expired"
)

// Upload is one extracted archive. RootDir is owned exclusively by the upload
// while it is registered.
type Upload struct {
	ID        string
	RootDir   string
	CreatedAt time.Time
	// EntryPath is the slash-separated path of the entry document relative
	// to RootDir, set once the document has been located.
	EntryPath string
	State     State

	Details Details
}

// Details is descriptive metadata recorded at publish time.
type Details struct {
	Format        string
	ArchiveSHA256 string
	ArchiveBytes  int64
	Files         int
	ExtractedSize int64
	Rejected      int
	Skipped       int
}

// Age is how old the upload is at now.
func (u Upload) Age(now time.Time) time.Duration {
	return now.Sub(u.CreatedAt)
}
