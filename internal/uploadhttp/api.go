// Package uploadhttp exposes the upload JSON API: POST /upload, GET /recent
// and GET /uploads/{id}.
package uploadhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/keithlinneman/playdrop/internal/httpmw"
	"github.com/keithlinneman/playdrop/internal/log"
	"github.com/keithlinneman/playdrop/internal/publish"
	"github.com/keithlinneman/playdrop/internal/uploads"
)

const (
	// DefaultRecentLimit is how many uploads GET /recent returns.
	DefaultRecentLimit = 50

	// FormField is the multipart field carrying the archive.
	FormField = "file"

	// multipart parts beyond this are spooled to temp files by net/http
	multipartMemory = 8 << 20

	// allowance for multipart boundaries and part headers on top of the archive
	multipartOverhead = 1 << 20
)

// Publisher publishes uploaded archives.
type Publisher interface {
	Publish(ctx context.Context, in publish.IncomingFile) (*publish.Result, error)
	URLFor(u uploads.Upload) string
}

// Catalog reads published uploads.
type Catalog interface {
	Get(id string) (uploads.Upload, error)
	ListRecent(limit int) []uploads.Upload
}

// Options configures the API.
type Options struct {
	Logger    log.Logger
	Publisher Publisher
	Catalog   Catalog

	// MaxUploadBytes bounds the request body. Zero disables the bound.
	MaxUploadBytes int64
	// RecentLimit defaults to DefaultRecentLimit.
	RecentLimit int
	// Retention, when set, is used to report expiry times.
	Retention time.Duration

	// UploadMiddleware wraps only the upload route (rate limiting).
	UploadMiddleware []func(http.Handler) http.Handler
}

// API implements the upload endpoints.
type API struct {
	publisher   Publisher
	catalog     Catalog
	logger      log.Logger
	maxBytes    int64
	recentLimit int
	retention   time.Duration
	uploadMW    []func(http.Handler) http.Handler
}

// NewAPI creates the upload API handler.
func NewAPI(opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = DefaultRecentLimit
	}
	return &API{
		publisher:   opts.Publisher,
		catalog:     opts.Catalog,
		logger:      opts.Logger,
		maxBytes:    opts.MaxUploadBytes,
		recentLimit: opts.RecentLimit,
		retention:   opts.Retention,
		uploadMW:    opts.UploadMiddleware,
	}
}

// RegisterRoutes attaches the upload endpoints to the router.
func (api *API) RegisterRoutes(r chi.Router) {
	mws := append([]func(http.Handler) http.Handler{}, api.uploadMW...)
	if api.maxBytes > 0 {
		mws = append(mws, httpmw.MaxBody(api.maxBytes+multipartOverhead))
	}
	r.Method(http.MethodPost, "/upload", httpmw.Chain(http.HandlerFunc(api.HandleUpload), append(mws, httpmw.Scope("upload"))...))
	r.With(httpmw.Scope("recent")).Get("/recent", api.HandleRecent)
	r.With(httpmw.Scope("upload_detail")).Get("/uploads/{id}", api.HandleDetail)
}

// HandleUpload accepts a multipart archive upload and publishes it.
func (api *API) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			api.writeError(ctx, w, http.StatusRequestEntityTooLarge, "uploaded file exceeds the maximum allowed size", "too_large")
			return
		}
		api.writeError(ctx, w, http.StatusBadRequest, "request must be multipart/form-data with a file field", "intake_rejected")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			api.logger.Warn(ctx, "failed to remove multipart temp files", "error", err.Error())
		}
	}()

	f, hdr, err := r.FormFile(FormField)
	if err != nil {
		api.writeError(ctx, w, http.StatusBadRequest, "no file was uploaded", "intake_rejected")
		return
	}
	defer f.Close()

	res, err := api.publisher.Publish(ctx, publish.IncomingFile{
		Body:     f,
		Size:     hdr.Size,
		Filename: hdr.Filename,
		MIMEType: hdr.Header.Get("Content-Type"),
	})
	if err != nil {
		status, msg := publish.StatusFor(err)
		code := "storage_failure"
		var pe *publish.Error
		if errors.As(err, &pe) {
			code = pe.Code()
		}
		api.writeError(ctx, w, status, msg, code)
		return
	}

	api.writeJSON(ctx, w, http.StatusOK, UploadResponse{ID: res.ID, PlayURL: res.URL})
}

// HandleRecent lists the most recent uploads, newest first.
func (api *API) HandleRecent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	recent := api.catalog.ListRecent(api.recentLimit)
	items := make([]RecentItem, 0, len(recent))
	for _, u := range recent {
		items = append(items, RecentItem{
			ID:    u.ID,
			MTime: u.CreatedAt.UTC(),
			URL:   api.publisher.URLFor(u),
		})
	}

	api.logger.Debug(ctx, "served recent uploads", "count", len(items))
	api.writeJSON(ctx, w, http.StatusOK, items)
}

// HandleDetail describes a single published upload.
func (api *API) HandleDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		api.writeError(ctx, w, http.StatusNotFound, "upload not found", "not_found")
		return
	}
	u, err := api.catalog.Get(id)
	if err != nil {
		api.writeError(ctx, w, http.StatusNotFound, "upload not found", "not_found")
		return
	}

	resp := UploadDetail{
		ID:            u.ID,
		MTime:         u.CreatedAt.UTC(),
		URL:           api.publisher.URLFor(u),
		EntryPath:     u.EntryPath,
		Format:        u.Details.Format,
		ArchiveSHA256: u.Details.ArchiveSHA256,
		ArchiveBytes:  u.Details.ArchiveBytes,
		Files:         u.Details.Files,
		ExtractedSize: u.Details.ExtractedSize,
	}
	if api.retention > 0 {
		resp.ExpiresAt = u.CreatedAt.Add(api.retention).UTC()
	}
	api.writeJSON(ctx, w, http.StatusOK, resp)
}

func (api *API) writeError(ctx context.Context, w http.ResponseWriter, status int, msg, code string) {
	api.writeJSON(ctx, w, status, ErrorResponse{Error: msg, Code: code})
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
