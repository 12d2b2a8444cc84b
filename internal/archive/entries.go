package archive

import (
	"io"
	"io/fs"
	"iter"
)

// Kind classifies an archive entry.
type Kind int

const (
	KindFile Kind = iota
	KindDir
	// KindOther covers symlinks, hard links, devices and anything else that is
	// never written to disk.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	default:
		return "other"
	}
}

// Entry is one member of an archive. Name is the raw, untrusted name stored
// in the archive.
type Entry struct {
	Name string
	Kind Kind
	Mode fs.FileMode
	// Size is the declared uncompressed size, or -1 when unknown.
	Size int64

	open    func() (io.ReadCloser, error)
	discard func() error
}

// Open returns the entry's payload. Streaming formats only allow the payload
// to be read before advancing to the next entry.
func (e *Entry) Open() (io.ReadCloser, error) {
	if e.open == nil {
		return io.NopCloser(eofReader{}), nil
	}
	return e.open()
}

// Discard skips the entry's payload on formats where that requires reading it.
func (e *Entry) Discard() error {
	if e.discard == nil {
		return nil
	}
	return e.discard()
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

// Entries iterates the entries of an archive of the given format in archive
// order. Iteration stops at the first error, which is classified as
// ErrCorrupt. src must be positioned at the start of the archive; size is
// its length or <= 0 if unknown.
func Entries(format Format, src io.Reader, size int64) (iter.Seq2[*Entry, error], error) {
	switch format {
	case FormatZip:
		if ra, ok := src.(io.ReaderAt); ok && size > 0 {
			return zipEntries(ra, size)
		}
		return zipStreamEntries(src), nil
	case FormatTar:
		return tarEntries(src), nil
	case FormatTarGz, FormatTarBz2, FormatTarZst, FormatTarXz:
		return compressedTarEntries(format, src), nil
	default:
		return nil, newError(ErrCorrupt, "open", "", errUnsupported(string(format)))
	}
}
