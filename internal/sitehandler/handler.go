// Package sitehandler serves published upload content under the public
// prefix, confined to each upload's directory.
package sitehandler

import (
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"

	"github.com/gabriel-vasile/mimetype"
)

type Handler struct {
	opts Options
}

func New(opts *Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Handler{opts: *opts}, nil
}

// Prefix returns the normalized public prefix the handler serves.
func (h *Handler) Prefix() string { return h.opts.Prefix }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id, name, ok := resolvePath(r.URL.Path, h.opts.Prefix)
	if !ok {
		h.NotFound(w, r)
		return
	}
	u, err := h.opts.Uploads.Get(id)
	if err != nil {
		h.NotFound(w, r)
		return
	}

	// opened through an os.Root so neither symlinks nor a concurrent sweep
	// can resolve outside the upload directory
	root, err := os.OpenRoot(u.RootDir)
	if err != nil {
		h.NotFound(w, r)
		return
	}
	defer root.Close()

	f, info, err := openRegular(root.FS(), name)
	if err != nil {
		h.NotFound(w, r)
		return
	}
	defer f.Close()

	rs, ok := f.(io.ReadSeeker)
	if !ok {
		h.opts.Logger.Warn(r.Context(), "served file is not seekable", "upload_id", id)
		h.NotFound(w, r)
		return
	}

	hdr := w.Header()
	if cc := h.opts.cacheControl(name); cc != "" {
		hdr.Set("Cache-Control", cc)
	}
	if ct := contentType(name, rs); ct != "" {
		hdr.Set("Content-Type", ct)
	}
	hdr.Set("Content-Security-Policy", h.opts.ContentSecurityPolicy)
	// agrees with frame-ancestors 'self'
	hdr.Set("X-Frame-Options", "SAMEORIGIN")
	hdr.Set("X-Upload-Id", id)

	// ServeContent, not ServeFileFS, which would redirect */index.html
	http.ServeContent(w, r, path.Base(name), info.ModTime(), rs)
}

func openRegular(fsys fs.FS, name string) (fs.File, fs.FileInfo, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err == nil && !info.Mode().IsRegular() {
		err = fs.ErrNotExist
	}
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, info, nil
}

// contentType trusts a known extension and otherwise sniffs the first bytes.
// Returns "" when the reader cannot be rewound, leaving it to ServeContent.
func contentType(name string, rs io.ReadSeeker) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	mt, err := mimetype.DetectReader(rs)
	if _, serr := rs.Seek(0, io.SeekStart); serr != nil || err != nil {
		return ""
	}
	return mt.String()
}

// NotFound writes the 404 page, uncached. It is also the router fallback.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	if h.opts.FallbackFS != nil {
		if f, info, err := openRegular(h.opts.FallbackFS, h.opts.Fallback404File); err == nil {
			defer f.Close()
			if rs, ok := f.(io.ReadSeeker); ok {
				http.ServeContent(&forcedStatus{ResponseWriter: w, code: http.StatusNotFound}, r,
					h.opts.Fallback404File, info.ModTime(), rs)
				return
			}
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, "404 page not found")
}

// forcedStatus replaces the first status written with code.
type forcedStatus struct {
	http.ResponseWriter
	code int
	sent bool
}

func (w *forcedStatus) WriteHeader(code int) {
	if !w.sent {
		w.sent = true
		code = w.code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *forcedStatus) Write(b []byte) (int, error) {
	if !w.sent {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
