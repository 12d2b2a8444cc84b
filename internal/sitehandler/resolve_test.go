package sitehandler

import (
	"slices"
	"strings"
	"testing"
	"testing/fstest"
)

const testID = "3f2504e0-4f89-41d3-9a0c-0305e82c3301"

func TestResolvePath(t *testing.T) {
	tests := []struct {
		name     string
		urlPath  string
		wantID   string
		wantFile string
		wantOK   bool
	}{
		{"root document", "/play/" + testID + "/index.html", testID, "index.html", true},
		{"nested file", "/play/" + testID + "/game/assets/app.js", testID, "game/assets/app.js", true},
		{"spaces decoded", "/play/" + testID + "/my game/index.html", testID, "my game/index.html", true},
		{"dots inside a name", "/play/" + testID + "/v1..2/index.html", testID, "v1..2/index.html", true},
		{"trailing dots", "/play/" + testID + "/build../app..js", testID, "build../app..js", true},

		{"wrong prefix", "/other/" + testID + "/index.html", "", "", false},
		{"prefix only", "/play", "", "", false},
		{"prefix slash", "/play/", "", "", false},
		{"prefix lookalike", "/playground/" + testID + "/index.html", "", "", false},
		{"id only", "/play/" + testID, "", "", false},
		{"id slash", "/play/" + testID + "/", "", "", false},
		{"directory", "/play/" + testID + "/game/", "", "", false},
		{"not a uuid", "/play/abc/index.html", "", "", false},
		{"dotdot", "/play/" + testID + "/../etc/passwd", "", "", false},
		{"dotdot in id slot", "/play/../" + testID + "/index.html", "", "", false},
		{"dotdot last", "/play/" + testID + "/game/..", "", "", false},
		{"dot segment", "/play/" + testID + "/./index.html", "", "", false},
		{"backslash", "/play/" + testID + `/..\secret`, "", "", false},
		{"nul", "/play/" + testID + "/index.html\x00.png", "", "", false},
		{"double slash", "/play/" + testID + "//index.html", "", "", false},
		{"empty segment", "/play/" + testID + "/a//b.html", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, file, ok := resolvePath(tt.urlPath, "/play")
			if ok != tt.wantOK || id != tt.wantID || file != tt.wantFile {
				t.Fatalf("resolvePath(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.urlPath, id, file, ok, tt.wantID, tt.wantFile, tt.wantOK)
			}
		})
	}
}

func TestOpenRegular(t *testing.T) {
	fsys := fstest.MapFS{
		"index.html":     &fstest.MapFile{Data: []byte("x")},
		"dir/page.html":  &fstest.MapFile{Data: []byte("y")},
		"dir/index.html": &fstest.MapFile{Data: []byte("z")},
	}

	tests := []struct {
		name string
		want bool
	}{
		{"index.html", true},
		{"dir/page.html", true},
		{"dir", false},
		{"missing.html", false},
		{"", false},
		{"../index.html", false},
		{"/index.html", false},
	}
	for _, tt := range tests {
		f, _, err := openRegular(fsys, tt.name)
		if got := err == nil; got != tt.want {
			t.Errorf("openRegular(%q) err = %v, want ok=%v", tt.name, err, tt.want)
		}
		if f != nil {
			f.Close()
		}
	}
}

func FuzzResolvePath(f *testing.F) {
	f.Add("/play/" + testID + "/index.html")
	f.Add("/play/" + testID + "/../x")
	f.Add("/play/" + testID + "/a/./b")
	f.Add(`/play/` + testID + `/a\b`)
	f.Add("/play//")
	f.Add("/play/" + testID + "/v1..2/index.html")

	f.Fuzz(func(t *testing.T, p string) {
		id, file, ok := resolvePath(p, "/play")
		if !ok {
			return
		}
		if id == "" || file == "" {
			t.Fatalf("resolved empty id or file from %q", p)
		}
		if strings.HasPrefix(file, "/") || slices.Contains(strings.Split(file, "/"), "..") || strings.Contains(file, `\`) {
			t.Fatalf("unsafe file %q resolved from %q", file, p)
		}
	})
}
