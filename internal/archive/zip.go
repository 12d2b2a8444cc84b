package archive

import (
	"archive/zip"
	"errors"
	"io"
	"io/fs"
	"iter"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/krolaw/zipstream"
)

// zipEntries reads the central directory, so it needs random access.
func zipEntries(ra io.ReaderAt, size int64) (iter.Seq2[*Entry, error], error) {
	// Names are sanitized by the extractor, so insecure names are not fatal here.
	zr, err := zip.NewReader(ra, size)
	if errors.Is(err, zip.ErrInsecurePath) && zr != nil {
		err = nil
	}
	if err != nil {
		return nil, newError(ErrCorrupt, "open zip", "", err)
	}
	zr.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})

	return func(yield func(*Entry, error) bool) {
		for _, zf := range zr.File {
			e := zipEntry(&zf.FileHeader)
			e.open = zf.Open
			if !yield(e, nil) {
				return
			}
		}
	}, nil
}

// zipStreamEntries walks local file headers for sources without random
// access. The payload must be consumed before the next header can be read.
func zipStreamEntries(src io.Reader) iter.Seq2[*Entry, error] {
	zr := zipstream.NewReader(src)

	return func(yield func(*Entry, error) bool) {
		for {
			fh, err := zr.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, newError(ErrCorrupt, "read zip header", "", err))
				return
			}

			e := zipEntry(fh)
			e.open = func() (io.ReadCloser, error) { return io.NopCloser(zr), nil }
			e.discard = func() error {
				if _, err := io.Copy(io.Discard, zr); err != nil {
					return newError(ErrCorrupt, "skip", fh.Name, err)
				}
				return nil
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

func zipEntry(fh *zip.FileHeader) *Entry {
	mode := fh.Mode()
	e := &Entry{Name: fh.Name, Mode: mode, Size: -1}
	if fh.UncompressedSize64 > 0 && fh.UncompressedSize64 < 1<<62 {
		e.Size = int64(fh.UncompressedSize64)
	}

	switch {
	case mode&fs.ModeSymlink != 0, mode&(fs.ModeDevice|fs.ModeNamedPipe|fs.ModeSocket|fs.ModeCharDevice) != 0:
		e.Kind = KindOther
	case mode.IsDir() || strings.HasSuffix(fh.Name, "/") || strings.HasSuffix(fh.Name, `\`):
		e.Kind = KindDir
	default:
		e.Kind = KindFile
	}
	return e
}
