package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"syscall"

	"github.com/keithlinneman/playdrop/internal/log"
	"github.com/keithlinneman/playdrop/internal/pathutil"
)

// UnsafePolicy decides what happens to entries whose names fail sanitization.
type UnsafePolicy string

const (
	// PolicyDrop skips unsafe entries and keeps extracting.
	PolicyDrop UnsafePolicy = "drop"
	// PolicyReject fails the whole extraction with ErrUnsafeEntry.
	PolicyReject UnsafePolicy = "reject"
)

// ParseUnsafePolicy accepts "drop" or "reject"; empty means drop.
func ParseUnsafePolicy(s string) (UnsafePolicy, error) {
	switch UnsafePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyDrop:
		return PolicyDrop, nil
	case PolicyReject:
		return PolicyReject, nil
	default:
		return "", fmt.Errorf("unknown unsafe entry policy %q (want drop or reject)", s)
	}
}

const (
	dirPerm  fs.FileMode = 0o755
	filePerm fs.FileMode = 0o644
)

// Options bounds an extraction. Zero limits mean unlimited.
type Options struct {
	MaxEntryBytes int64
	MaxTotalBytes int64
	MaxEntries    int
	Policy        UnsafePolicy
	Logger        log.Logger
}

// Result summarises a finished (or failed) extraction.
type Result struct {
	Format Format
	// Entries counts every entry seen, including skipped ones.
	Entries int
	// Written counts regular files written to disk.
	Written int
	Dirs    int
	// Rejected counts entries whose names failed sanitization.
	Rejected int
	// Skipped counts non-regular entries and entries that conflict with
	// something already extracted (a file where a directory is needed, or
	// the reverse).
	Skipped int
	Bytes   int64
}

// Extractor extracts archives with fixed limits. It is safe for concurrent use.
type Extractor struct {
	opts Options
}

func NewExtractor(opts Options) *Extractor {
	if opts.Policy == "" {
		opts.Policy = PolicyDrop
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &Extractor{opts: opts}
}

// Extract detects the format of src and writes its entries beneath
// targetRoot, which must already exist. size is the length of src, or <= 0
// if unknown. On error, whatever was already written is left in place for
// the caller to remove.
func (x *Extractor) Extract(ctx context.Context, src io.Reader, size int64, targetRoot string) (Result, error) {
	var res Result

	head, body, err := sniff(src, size)
	if err != nil {
		return res, err
	}
	format, err := Detect(head)
	if err != nil {
		return res, err
	}
	res.Format = format

	entries, err := Entries(format, body, size)
	if err != nil {
		return res, err
	}

	root, err := os.OpenRoot(targetRoot)
	if err != nil {
		return res, newError(ErrIOFailure, "open target", "", err)
	}
	defer root.Close()

	w := &writer{root: root, made: map[string]bool{}}
	for e, err := range entries {
		if err != nil {
			return res, err
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		res.Entries++
		if x.opts.MaxEntries > 0 && res.Entries > x.opts.MaxEntries {
			return res, newError(ErrTooLarge, "count entries", "", fmt.Errorf("more than %d entries", x.opts.MaxEntries))
		}

		rel, perr := pathutil.CleanEntryPath(e.Name)
		if perr != nil {
			if x.opts.Policy == PolicyReject {
				return res, newError(ErrUnsafeEntry, "sanitize", e.Name, perr)
			}
			res.Rejected++
			x.opts.Logger.Debug(ctx, "dropping unsafe archive entry", "entry", e.Name, "reason", perr.Error())
			if err := e.Discard(); err != nil {
				return res, err
			}
			continue
		}

		switch e.Kind {
		case KindDir:
			switch err := w.mkdirAll(rel); {
			case err == nil:
				res.Dirs++
			case errors.Is(err, errConflict):
				res.Skipped++
			default:
				return res, newError(ErrIOFailure, "mkdir", rel, err)
			}

		case KindFile:
			n, err := x.writeFile(w, e, rel, res.Bytes)
			res.Bytes += n
			switch {
			case err == nil:
				res.Written++
			case errors.Is(err, errConflict):
				res.Skipped++
				if err := e.Discard(); err != nil {
					return res, err
				}
			default:
				return res, err
			}

		default:
			res.Skipped++
			if err := e.Discard(); err != nil {
				return res, err
			}
		}
	}

	return res, nil
}

func (x *Extractor) writeFile(w *writer, e *Entry, rel string, written int64) (int64, error) {
	limit := int64(-1)
	if x.opts.MaxEntryBytes > 0 {
		limit = x.opts.MaxEntryBytes
	}
	if x.opts.MaxTotalBytes > 0 {
		remaining := x.opts.MaxTotalBytes - written
		if limit < 0 || remaining < limit {
			limit = remaining
		}
	}
	if limit >= 0 && e.Size > limit {
		return 0, newError(ErrTooLarge, "write", rel, fmt.Errorf("declared size %d exceeds limit %d", e.Size, limit))
	}

	f, err := w.create(rel)
	if err != nil {
		if errors.Is(err, errConflict) {
			return 0, err
		}
		return 0, newError(ErrIOFailure, "create", rel, err)
	}

	rc, err := e.Open()
	if err != nil {
		_ = f.Close()
		return 0, newError(ErrCorrupt, "open entry", rel, err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if limit >= 0 {
		r = io.LimitReader(rc, limit+1)
	}
	dst := &trackingWriter{w: f}
	n, err := io.Copy(dst, r)
	closeErr := f.Close()

	switch {
	case dst.err != nil:
		return n, newError(ErrIOFailure, "write", rel, dst.err)
	case err != nil:
		return n, newError(ErrCorrupt, "read entry", rel, err)
	case closeErr != nil:
		return n, newError(ErrIOFailure, "close", rel, closeErr)
	case limit >= 0 && n > limit:
		return n, newError(ErrTooLarge, "write", rel, fmt.Errorf("exceeds limit %d", limit))
	}
	return n, nil
}

var errConflict = errors.New("path conflicts with existing entry")

// writer creates files and directories through an os.Root so no write can
// resolve outside the extraction target.
type writer struct {
	root *os.Root
	made map[string]bool
}

func (w *writer) mkdirAll(rel string) error {
	if w.made[rel] {
		return nil
	}
	segs := strings.Split(rel, "/")
	for i := range segs {
		p := strings.Join(segs[:i+1], "/")
		if w.made[p] {
			continue
		}
		err := w.root.Mkdir(p, dirPerm)
		if err != nil && !errors.Is(err, fs.ErrExist) {
			if isConflictErr(err) {
				return errConflict
			}
			return err
		}
		if err != nil {
			fi, serr := w.root.Lstat(p)
			if serr != nil {
				return serr
			}
			if !fi.IsDir() {
				return errConflict
			}
		}
		w.made[p] = true
	}
	return nil
}

// create opens rel for writing, replacing an earlier file with the same name.
func (w *writer) create(rel string) (*os.File, error) {
	if dir := path.Dir(rel); dir != "." {
		if err := w.mkdirAll(dir); err != nil {
			return nil, err
		}
	}
	if w.made[rel] {
		return nil, errConflict
	}
	if fi, err := w.root.Lstat(rel); err == nil && !fi.Mode().IsRegular() {
		return nil, errConflict
	}
	f, err := w.root.OpenFile(rel, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil && isConflictErr(err) {
		return nil, errConflict
	}
	return f, err
}

func isConflictErr(err error) bool {
	return errors.Is(err, syscall.ENOTDIR) || errors.Is(err, syscall.EISDIR)
}

// trackingWriter remembers write failures so a failed copy can be blamed on
// the disk rather than the archive.
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}
