package archive

import (
	"archive/tar"
	"compress/bzip2"
	"errors"
	"io"
	"iter"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

func compressedTarEntries(format Format, src io.Reader) iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		r, closeFn, err := decompressor(format, src)
		if err != nil {
			yield(nil, newError(ErrCorrupt, "open "+string(format), "", err))
			return
		}
		defer closeFn()

		for e, err := range tarEntries(r) {
			if !yield(e, err) || err != nil {
				return
			}
		}
	}
}

func decompressor(format Format, src io.Reader) (io.Reader, func(), error) {
	switch format {
	case FormatTarGz:
		r, err := gzip.NewReader(src)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	case FormatTarBz2:
		return bzip2.NewReader(src), func() {}, nil
	case FormatTarZst:
		r, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	case FormatTarXz:
		r, err := xz.NewReader(src)
		if err != nil {
			return nil, nil, err
		}
		return r, func() {}, nil
	default:
		return nil, nil, errUnsupported(string(format))
	}
}

func tarEntries(src io.Reader) iter.Seq2[*Entry, error] {
	tr := tar.NewReader(src)

	return func(yield func(*Entry, error) bool) {
		for {
			hdr, err := tr.Next()
			if errors.Is(err, tar.ErrInsecurePath) && hdr != nil {
				err = nil
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, newError(ErrCorrupt, "read tar header", "", err))
				return
			}

			e := &Entry{
				Name: hdr.Name,
				Mode: hdr.FileInfo().Mode(),
				Size: hdr.Size,
				open: func() (io.ReadCloser, error) { return io.NopCloser(tr), nil },
			}
			switch hdr.Typeflag {
			case tar.TypeReg:
				e.Kind = KindFile
			case tar.TypeDir:
				e.Kind = KindDir
			default:
				e.Kind = KindOther
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}
