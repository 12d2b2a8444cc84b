package publish

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestValidateIntake(t *testing.T) {
	body := strings.NewReader("x")
	tests := []struct {
		name string
		in   IncomingFile
		max  int64
		want error
	}{
		{"zip ext", IncomingFile{Body: body, Size: 10, Filename: "site.zip"}, 100, nil},
		{"tar.gz ext", IncomingFile{Body: body, Size: 10, Filename: "SITE.TAR.GZ"}, 100, nil},
		{"windows path", IncomingFile{Body: body, Size: 10, Filename: `C:\Users\me\site.tgz`}, 100, nil},
		{"generic mime", IncomingFile{Body: body, Size: 10, Filename: "blob", MIMEType: "application/octet-stream"}, 100, nil},
		{"mime with params", IncomingFile{Body: body, Size: 10, Filename: "blob", MIMEType: "application/zip; charset=binary"}, 100, nil},
		{"no metadata", IncomingFile{Body: body, Size: 10}, 100, nil},
		{"unknown size", IncomingFile{Body: body, Size: -1, Filename: "a.zip"}, 100, nil},
		{"no limit", IncomingFile{Body: body, Size: 1 << 40, Filename: "a.zip"}, 0, nil},
		{"missing body", IncomingFile{Size: 10, Filename: "a.zip"}, 100, ErrIntake},
		{"empty", IncomingFile{Body: body, Size: 0, Filename: "a.zip"}, 100, ErrIntake},
		{"too large", IncomingFile{Body: body, Size: 101, Filename: "a.zip"}, 100, ErrTooLarge},
		{"image", IncomingFile{Body: body, Size: 10, Filename: "cat.png", MIMEType: "image/png"}, 100, ErrIntake},
		{"html", IncomingFile{Body: body, Size: 10, Filename: "index.html", MIMEType: "text/html"}, 100, ErrIntake},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIntake(tt.in, tt.max)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{newErr(ErrIntake, msgType, nil), http.StatusBadRequest},
		{newErr(ErrTooLarge, msgTooLarge, nil), http.StatusRequestEntityTooLarge},
		{newErr(ErrBadArchive, msgCorrupt, errors.New("zip: not a valid zip file")), http.StatusBadRequest},
		{newErr(ErrNoEntryDocument, msgNoDocument, nil), http.StatusBadRequest},
		{newErr(ErrStorageFailure, msgStorage, errors.New("open /srv/uploads/x: permission denied")), http.StatusInternalServerError},
		{errors.New("something unexpected at /srv/uploads"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		status, msg := StatusFor(tt.err)
		if status != tt.status {
			t.Fatalf("StatusFor(%v) = %d, want %d", tt.err, status, tt.status)
		}
		if strings.Contains(msg, "/srv") || strings.Contains(msg, "zip:") {
			t.Fatalf("client message leaks internals: %q", msg)
		}
	}
}

func TestPublicURL(t *testing.T) {
	tests := []struct {
		prefix, id, rel string
		want            string
	}{
		{"/play", "abc", "index.html", "/play/abc/index.html"},
		{"/play/", "abc", "sub/page.html", "/play/abc/sub/page.html"},
		{"play", "abc", "a b/c#d.html", "/play/abc/a%20b/c%23d.html"},
		{"", "abc", "index.html", "/abc/index.html"},
		{"/", "abc", "x/?.html", "/abc/x/%3F.html"},
	}
	for _, tt := range tests {
		if got := PublicURL(tt.prefix, tt.id, tt.rel); got != tt.want {
			t.Fatalf("PublicURL(%q,%q,%q) = %q, want %q", tt.prefix, tt.id, tt.rel, got, tt.want)
		}
	}
}
