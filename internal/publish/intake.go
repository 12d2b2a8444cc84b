package publish

import (
	"io"
	"mime"
	"path"
	"slices"
	"strings"
)

// IncomingFile is an uploaded file handed to the gateway. Body may also
// implement io.ReaderAt and io.Seeker (multipart files do), which enables
// random-access zip reading and mirroring.
type IncomingFile struct {
	Body     io.Reader
	Size     int64
	Filename string
	MIMEType string
}

var archiveExts = []string{
	".zip", ".tar", ".tgz", ".tar.gz", ".tbz2", ".tar.bz2", ".tzst", ".tar.zst", ".txz", ".tar.xz",
}

var archiveMIMEs = []string{
	"application/octet-stream",
	"application/zip",
	"application/x-zip-compressed",
	"application/x-tar",
	"application/gzip",
	"application/x-gzip",
	"application/x-compressed-tar",
	"application/x-bzip2",
	"application/x-bzip-compressed-tar",
	"application/zstd",
	"application/x-zstd",
	"application/x-xz",
	"application/x-xz-compressed-tar",
}

// ValidateIntake rejects uploads before anything touches disk: missing or
// empty bodies, bodies over maxBytes (when maxBytes > 0), and files that
// neither carry an archive extension nor an archive (or generic) MIME type.
// Passing intake says nothing about the content; the format is sniffed
// during extraction.
func ValidateIntake(f IncomingFile, maxBytes int64) error {
	if f.Body == nil {
		return newErr(ErrIntake, msgMissing, nil)
	}
	if f.Size == 0 {
		return newErr(ErrIntake, msgEmpty, nil)
	}
	if maxBytes > 0 && f.Size > maxBytes {
		return newErr(ErrTooLarge, msgTooLarge, nil)
	}
	if hasArchiveExt(f.Filename) {
		return nil
	}
	if mt, _, err := mime.ParseMediaType(f.MIMEType); err == nil && slices.Contains(archiveMIMEs, strings.ToLower(mt)) {
		return nil
	}
	if f.MIMEType == "" {
		return nil
	}
	return newErr(ErrIntake, msgType, nil)
}

func hasArchiveExt(name string) bool {
	base := strings.ToLower(path.Base(strings.ReplaceAll(name, `\`, "/")))
	for _, ext := range archiveExts {
		if strings.HasSuffix(base, ext) {
			return true
		}
	}
	return false
}
