package sitehandler

import (
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/keithlinneman/playdrop/internal/uploads"
)

type stubCatalog struct {
	uploads map[string]uploads.Upload
}

func (s *stubCatalog) Get(id string) (uploads.Upload, error) {
	u, ok := s.uploads[id]
	if !ok {
		return uploads.Upload{}, uploads.ErrNotFound
	}
	return u, nil
}

func testFallbackFS() fs.FS {
	return fstest.MapFS{
		"404.html": &fstest.MapFile{Data: []byte("<h1>Fallback 404</h1>")},
	}
}

// writeUpload lays out files under a fresh upload directory and returns it.
func writeUpload(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newTestHandler(t *testing.T, fallback fs.FS) (*Handler, string) {
	t.Helper()
	dir := writeUpload(t, map[string]string{
		"index.html":        "<h1>Play</h1>",
		"game/app.js":       "console.log('hi')",
		"game/index.html":   "<h1>Nested</h1>",
		"assets/data.json":  `{"k":"v"}`,
		"assets/sprite.png": "PNG",
	})
	cat := &stubCatalog{uploads: map[string]uploads.Upload{
		testID: {ID: testID, RootDir: dir, EntryPath: "index.html", State: uploads.StatePublished},
	}}
	h, err := New(&Options{Uploads: cat, Prefix: "/play", FallbackFS: fallback})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h, dir
}

func get(h http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresUploads(t *testing.T) {
	_, err := New(&Options{Prefix: "/play"})
	if !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("err = %v, want ErrInvalidOptions", err)
	}
}

func TestNew_RejectsRootPrefix(t *testing.T) {
	for _, p := range []string{"", "/", "//"} {
		_, err := New(&Options{Uploads: &stubCatalog{}, Prefix: p})
		if !errors.Is(err, ErrInvalidOptions) {
			t.Fatalf("prefix %q: err = %v, want ErrInvalidOptions", p, err)
		}
	}
}

func TestNew_NormalizesPrefix(t *testing.T) {
	h, err := New(&Options{Uploads: &stubCatalog{}, Prefix: "play/"})
	if err != nil {
		t.Fatal(err)
	}
	if h.Prefix() != "/play" {
		t.Fatalf("Prefix() = %q, want /play", h.Prefix())
	}
}

func TestServeHTTP_Files(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	tests := []struct {
		path     string
		body     string
		ctype    string
		cacheCtl string
	}{
		{"/play/" + testID + "/index.html", "<h1>Play</h1>", "text/html", "no-cache"},
		{"/play/" + testID + "/game/index.html", "<h1>Nested</h1>", "text/html", "no-cache"},
		{"/play/" + testID + "/game/app.js", "console.log('hi')", "javascript", "public, max-age=3600"},
		{"/play/" + testID + "/assets/data.json", `{"k":"v"}`, "application/json", "public, max-age=300"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(h, http.MethodGet, tt.path)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if rec.Body.String() != tt.body {
				t.Fatalf("body = %q, want %q", rec.Body.String(), tt.body)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, tt.ctype) {
				t.Fatalf("Content-Type = %q, want it to contain %q", ct, tt.ctype)
			}
			if cc := rec.Header().Get("Cache-Control"); cc != tt.cacheCtl {
				t.Fatalf("Cache-Control = %q, want %q", cc, tt.cacheCtl)
			}
			if csp := rec.Header().Get("Content-Security-Policy"); csp != DefaultContentSecurityPolicy {
				t.Fatalf("Content-Security-Policy = %q", csp)
			}
		})
	}
}

func TestServeHTTP_IndexHTMLIsNotRedirected(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := get(h, http.MethodGet, "/play/"+testID+"/index.html")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (no redirect)", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "" {
		t.Fatalf("unexpected redirect to %q", loc)
	}
}

func TestServeHTTP_HEAD(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := get(h, http.MethodHead, "/play/"+testID+"/index.html")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("HEAD returned a body: %q", rec.Body.String())
	}
}

func TestServeHTTP_BlockedMethods(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodOptions} {
		rec := get(h, m, "/play/"+testID+"/index.html")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: status = %d, want 405", m, rec.Code)
		}
		if allow := rec.Header().Get("Allow"); allow != "GET, HEAD" {
			t.Fatalf("%s: Allow = %q", m, allow)
		}
		if rec.Body.Len() != 0 {
			t.Fatalf("%s: expected empty body", m)
		}
	}
}

func TestServeHTTP_NotFound(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	other := "9b2d7c1e-0000-4000-8000-000000000000"

	paths := []string{
		"/play/" + testID + "/missing.html",
		"/play/" + testID + "/",
		"/play/" + testID + "/game",
		"/play/" + testID + "/game/",
		"/play/" + other + "/index.html",
		"/play/not-a-uuid/index.html",
		"/play/" + testID + "/../" + testID + "/index.html",
		"/play/" + testID + `/game\index.html`,
	}
	for _, p := range paths {
		rec := get(h, http.MethodGet, p)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%q: status = %d, want 404", p, rec.Code)
		}
		if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
			t.Fatalf("%q: Cache-Control = %q, want no-store", p, cc)
		}
		if strings.Contains(rec.Body.String(), "Play") {
			t.Fatalf("%q: leaked upload content", p)
		}
	}
}

func TestServeHTTP_NotFound_FallbackPage(t *testing.T) {
	h, _ := newTestHandler(t, testFallbackFS())

	rec := get(h, http.MethodGet, "/play/"+testID+"/missing.html")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Fallback 404") {
		t.Fatalf("body = %q, want fallback page", rec.Body.String())
	}
}

func TestServeHTTP_NotFound_PlainText(t *testing.T) {
	h, _ := newTestHandler(t, fstest.MapFS{})

	rec := get(h, http.MethodGet, "/play/"+testID+"/missing.html")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("Content-Type = %q", ct)
	}
}

func TestServeHTTP_RemovedDirectory(t *testing.T) {
	h, dir := newTestHandler(t, nil)
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}

	rec := get(h, http.MethodGet, "/play/"+testID+"/index.html")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestServeHTTP_SymlinkEscape(t *testing.T) {
	h, dir := newTestHandler(t, nil)

	outside := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(outside, []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(dir, "leak.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := os.Symlink(filepath.Dir(outside), filepath.Join(dir, "out")); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{"/play/" + testID + "/leak.txt", "/play/" + testID + "/out/secret.txt"} {
		rec := get(h, http.MethodGet, p)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%q: status = %d, want 404", p, rec.Code)
		}
		if strings.Contains(rec.Body.String(), "secret") {
			t.Fatalf("%q: served a file outside the upload", p)
		}
	}
}

func TestServeHTTP_SniffsExtensionlessFiles(t *testing.T) {
	h, dir := newTestHandler(t, nil)
	png := "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"
	if err := os.WriteFile(filepath.Join(dir, "LICENSE"), []byte("plain words\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sprite"), []byte(png), 0o644); err != nil {
		t.Fatal(err)
	}

	for file, want := range map[string]string{"LICENSE": "text/plain", "sprite": "image/png"} {
		rec := get(h, http.MethodGet, "/play/"+testID+"/"+file)
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, want) {
			t.Fatalf("%s: Content-Type = %q, want %s", file, ct, want)
		}
		if file == "sprite" && rec.Body.String() != png {
			t.Fatal("body not rewound after sniffing")
		}
	}
}

func TestForcedStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &forcedStatus{ResponseWriter: rec, code: http.StatusNotFound}
	_, _ = w.Write([]byte("x"))
	w.WriteHeader(http.StatusTeapot)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
