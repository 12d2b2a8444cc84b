package archive

import (
	"bufio"
	"io"

	"github.com/gabriel-vasile/mimetype"
)

// Format is a supported archive container.
type Format string

const (
	FormatZip    Format = "zip"
	FormatTar    Format = "tar"
	FormatTarGz  Format = "tar.gz"
	FormatTarBz2 Format = "tar.bz2"
	FormatTarZst Format = "tar.zst"
	FormatTarXz  Format = "tar.xz"
)

// sniffLen matches the mimetype default read limit; tar needs 512 bytes.
const sniffLen = 3072

// formatByMIME maps a detected MIME type (or one of its ancestors) to a Format.
// Compressed streams are assumed to wrap a tar.
var formatByMIME = []struct {
	mime   string
	format Format
}{
	{"application/zip", FormatZip},
	{"application/x-tar", FormatTar},
	{"application/gzip", FormatTarGz},
	{"application/x-bzip2", FormatTarBz2},
	{"application/zstd", FormatTarZst},
	{"application/x-xz", FormatTarXz},
}

// Detect identifies the archive format from the leading bytes of a stream.
// Formats built on zip (jar, docx, epub) are treated as zip.
func Detect(head []byte) (Format, error) {
	if len(head) == 0 {
		return "", newError(ErrCorrupt, "detect", "", io.ErrUnexpectedEOF)
	}
	detected := mimetype.Detect(head)
	for m := detected; m != nil; m = m.Parent() {
		for _, c := range formatByMIME {
			if m.Is(c.mime) {
				return c.format, nil
			}
		}
	}
	return "", newError(ErrCorrupt, "detect", "", errUnsupported(detected.String()))
}

type errUnsupported string

func (e errUnsupported) Error() string { return "unsupported content type " + string(e) }

// sniff returns the leading bytes of src and a reader positioned at the start
// of the stream. Random-access sources are read without being consumed and
// are handed back as a section reader so zip can use its central directory.
func sniff(src io.Reader, size int64) ([]byte, io.Reader, error) {
	if ra, ok := src.(io.ReaderAt); ok && size > 0 {
		head := make([]byte, min(int64(sniffLen), size))
		n, err := ra.ReadAt(head, 0)
		if err != nil && err != io.EOF {
			return nil, nil, newError(ErrCorrupt, "read header", "", err)
		}
		return head[:n], io.NewSectionReader(ra, 0, size), nil
	}

	br := bufio.NewReaderSize(src, 64<<10)
	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, nil, newError(ErrCorrupt, "read header", "", err)
	}
	return head, br, nil
}
