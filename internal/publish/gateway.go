// internal/publish/gateway.go
//
// Gateway turns an uploaded archive into a published upload: create a fresh
// directory, extract, locate the entry document, register, and hand back the
// public URL. Any failure before registration removes the directory, so a
// failed publish leaves nothing behind on disk or in the registry.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/playdrop/internal/archive"
	"github.com/keithlinneman/playdrop/internal/cryptoutil"
	"github.com/keithlinneman/playdrop/internal/log"
	"github.com/keithlinneman/playdrop/internal/uploads"
	"github.com/keithlinneman/playdrop/internal/xerrors"
)

// DefaultEntryDocument is the file that makes an upload servable.
const DefaultEntryDocument = "index.html"

// Mirror keeps a copy of accepted archives outside the upload root.
type Mirror interface {
	Put(ctx context.Context, id string, body io.Reader, size int64) error
}

// Metrics is implemented by the metrics package to observe publishes.
type Metrics interface {
	IncPublish(result string)
	ObservePublishDuration(seconds float64)
	ObserveExtraction(entries, rejected, skipped int, bytes int64)
	SetUploadsActive(n int)
}

// Options configures a Gateway.
type Options struct {
	Logger    log.Logger
	Registry  *uploads.Registry
	Extractor *archive.Extractor

	// Root is the upload root; each upload gets Root/<id>.
	Root string
	// Prefix is the public path prefix uploads are served under.
	Prefix string
	// EntryDocument is the file name searched for after extraction.
	EntryDocument string
	// MaxUploadBytes caps the archive size at intake. Zero disables the check.
	MaxUploadBytes int64

	Mirror  Mirror
	Metrics Metrics

	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// Result describes a successful publish.
type Result struct {
	ID        string
	URL       string
	EntryPath string
	CreatedAt time.Time
	Details   uploads.Details
}

// Gateway publishes uploads. It is safe for concurrent use; concurrent
// publishes never share a directory.
type Gateway struct {
	logger    log.Logger
	registry  *uploads.Registry
	extractor *archive.Extractor
	root      string
	prefix    string
	entryDoc  string
	maxBytes  int64
	mirror    Mirror
	metrics   Metrics
	now       func() time.Time
	newID     func() string
	tracer    trace.Tracer
}

// New validates opts and makes sure the upload root exists.
func New(opts Options) (*Gateway, error) {
	if opts.Registry == nil {
		return nil, xerrors.New("publish: registry is required")
	}
	if opts.Root == "" {
		return nil, xerrors.New("publish: upload root is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Extractor == nil {
		opts.Extractor = archive.NewExtractor(archive.Options{Logger: opts.Logger})
	}
	if opts.EntryDocument == "" {
		opts.EntryDocument = DefaultEntryDocument
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, xerrors.Wrapf(err, "create upload root %s", opts.Root)
	}

	return &Gateway{
		logger:    opts.Logger,
		registry:  opts.Registry,
		extractor: opts.Extractor,
		root:      opts.Root,
		prefix:    opts.Prefix,
		entryDoc:  opts.EntryDocument,
		maxBytes:  opts.MaxUploadBytes,
		mirror:    opts.Mirror,
		metrics:   opts.Metrics,
		now:       opts.Now,
		newID:     opts.NewID,
		tracer:    otel.Tracer("playdrop/publish"),
	}, nil
}

// EntryDocument returns the configured entry document name.
func (g *Gateway) EntryDocument() string { return g.entryDoc }

// URLFor returns the public URL of a registered upload.
func (g *Gateway) URLFor(u uploads.Upload) string {
	return PublicURL(g.prefix, u.ID, u.EntryPath)
}

// Publish extracts and registers an uploaded archive. Failures are *Error
// values whose Message is safe to return to the client.
func (g *Gateway) Publish(ctx context.Context, in IncomingFile) (*Result, error) {
	start := time.Now()
	ctx, span := g.tracer.Start(ctx, "publish",
		trace.WithAttributes(attribute.Int64("upload.size", in.Size)),
	)
	defer span.End()

	res, err := g.publish(ctx, in)
	g.observe(ctx, span, res, err, time.Since(start))
	return res, err
}

func (g *Gateway) publish(ctx context.Context, in IncomingFile) (*Result, error) {
	if err := ValidateIntake(in, g.maxBytes); err != nil {
		return nil, err
	}

	id := g.newID()
	dir := filepath.Join(g.root, id)
	ulog := g.logger.With("upload_id", id)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("upload.id", id))

	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, newErr(ErrStorageFailure, msgStorage, xerrors.Wrap(err, "create upload directory"))
	}

	body := in.Body
	var (
		digest string
		hr     *cryptoutil.HashingReader
	)
	if ra, ok := in.Body.(io.ReaderAt); ok && in.Size > 0 {
		sum, _, err := cryptoutil.SHA256ReaderHex(io.NewSectionReader(ra, 0, in.Size))
		if err != nil {
			g.rollback(ctx, ulog, id, dir)
			return nil, newErr(ErrStorageFailure, msgStorage, xerrors.Wrap(err, "hash upload"))
		}
		digest = sum
	} else {
		hr = cryptoutil.NewHashingReader(in.Body)
		body = hr
	}

	xres, err := g.extractor.Extract(ctx, body, in.Size, dir)
	if err != nil {
		g.rollback(ctx, ulog, id, dir)
		return nil, classifyExtract(err)
	}
	if hr != nil {
		// digest covers the whole upload, including bytes the archive reader never asked for
		if _, err := io.Copy(io.Discard, hr); err != nil {
			g.rollback(ctx, ulog, id, dir)
			return nil, newErr(ErrBadArchive, msgCorrupt, xerrors.Wrap(err, "drain upload"))
		}
		digest = hr.SumHex()
	}

	rel, err := uploads.Locate(dir, g.entryDoc)
	if err != nil {
		g.rollback(ctx, ulog, id, dir)
		if errors.Is(err, uploads.ErrNotFound) {
			return nil, newErr(ErrNoEntryDocument, msgNoDocument, err)
		}
		return nil, newErr(ErrStorageFailure, msgStorage, xerrors.Wrap(err, "locate entry document"))
	}

	size := in.Size
	if hr != nil {
		size = hr.BytesRead()
	}
	details := uploads.Details{
		Format:        string(xres.Format),
		ArchiveSHA256: digest,
		ArchiveBytes:  size,
		Files:         xres.Written,
		ExtractedSize: xres.Bytes,
		Rejected:      xres.Rejected,
		Skipped:       xres.Skipped,
	}

	createdAt := g.now()
	if err := g.registry.Register(id, dir, createdAt); err != nil {
		// the id is not ours to evict
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			ulog.Error(ctx, rmErr, "rollback: failed to remove upload directory; the sweeper will reclaim it")
		}
		return nil, newErr(ErrStorageFailure, msgStorage, err)
	}
	if err := g.registry.SetDetails(id, details); err != nil {
		g.rollback(ctx, ulog, id, dir)
		return nil, newErr(ErrStorageFailure, msgStorage, err)
	}
	if err := g.registry.SetEntryPath(id, rel); err != nil {
		g.rollback(ctx, ulog, id, dir)
		return nil, newErr(ErrStorageFailure, msgStorage, err)
	}

	res := &Result{
		ID:        id,
		URL:       PublicURL(g.prefix, id, rel),
		EntryPath: rel,
		CreatedAt: createdAt,
		Details:   details,
	}

	ulog.Info(ctx, "upload published",
		"entry_path", rel,
		"format", details.Format,
		"files", details.Files,
		"rejected", details.Rejected,
		"skipped", details.Skipped,
		"archive_size", humanize.Bytes(uint64(max(size, 0))),
		"extracted_size", humanize.Bytes(uint64(max(details.ExtractedSize, 0))),
		"sha256", digest,
	)

	g.mirrorArchive(ctx, ulog, id, in)
	return res, nil
}

// mirrorArchive copies the original archive to the mirror when the body can
// be rewound. Failures are logged only.
func (g *Gateway) mirrorArchive(ctx context.Context, ulog log.Logger, id string, in IncomingFile) {
	if g.mirror == nil {
		return
	}
	rs, ok := in.Body.(io.Seeker)
	if !ok {
		ulog.Debug(ctx, "archive mirror skipped: upload body is not seekable")
		return
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		ulog.Warn(ctx, "archive mirror skipped: rewind failed", "error", err.Error())
		return
	}
	if err := g.mirror.Put(ctx, id, in.Body, in.Size); err != nil {
		ulog.Error(ctx, err, "archive mirror upload failed")
	}
}

// rollback undoes a failed publish. Both steps are idempotent.
func (g *Gateway) rollback(ctx context.Context, ulog log.Logger, id, dir string) {
	g.registry.Evict(id)
	if err := os.RemoveAll(dir); err != nil {
		ulog.Error(ctx, err, "rollback: failed to remove upload directory; the sweeper will reclaim it")
	}
}

func classifyExtract(err error) *Error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newErr(ErrCanceled, msgCanceled, err)
	case errors.Is(err, archive.ErrTooLarge):
		return newErr(ErrBadArchive, msgLimits, err)
	case errors.Is(err, archive.ErrUnsafeEntry):
		return newErr(ErrBadArchive, msgUnsafe, err)
	case errors.Is(err, archive.ErrCorrupt):
		return newErr(ErrBadArchive, msgCorrupt, err)
	case errors.Is(err, archive.ErrIOFailure):
		return newErr(ErrStorageFailure, msgStorage, err)
	default:
		return newErr(ErrStorageFailure, msgStorage, fmt.Errorf("extract: %w", err))
	}
}

func (g *Gateway) observe(ctx context.Context, span trace.Span, res *Result, err error, d time.Duration) {
	result := "ok"
	var pe *Error
	if errors.As(err, &pe) {
		result = pe.Code()
	} else if err != nil {
		result = "storage_failure"
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		status, _ := StatusFor(err)
		if errors.Is(err, ErrCanceled) {
			g.logger.Info(ctx, "publish canceled", "result", result, "reason", err.Error())
		} else if status >= 500 {
			g.logger.Error(ctx, err, "publish failed", "result", result)
		} else {
			g.logger.Info(ctx, "publish rejected", "result", result, "reason", err.Error())
		}
	} else {
		span.SetAttributes(
			attribute.String("archive.format", res.Details.Format),
			attribute.Int("archive.files", res.Details.Files),
			attribute.Int("archive.rejected", res.Details.Rejected),
		)
	}

	if g.metrics == nil {
		return
	}
	g.metrics.IncPublish(result)
	g.metrics.ObservePublishDuration(d.Seconds())
	if res != nil {
		g.metrics.ObserveExtraction(res.Details.Files, res.Details.Rejected, res.Details.Skipped, res.Details.ExtractedSize)
	}
	g.metrics.SetUploadsActive(g.registry.Len())
}
