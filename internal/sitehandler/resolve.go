package sitehandler

import (
	"io/fs"
	"strings"

	"github.com/google/uuid"

	"github.com/keithlinneman/playdrop/internal/pathutil"
)

// resolvePath maps a URL path under prefix to an upload id and a file path
// relative to that upload's root.
//
// There is no default document: the path must name a file exactly, so
// "<prefix>/<id>/" and "<prefix>/<id>/dir/" never resolve.
func resolvePath(urlPath, prefix string) (id, file string, ok bool) {
	rest, found := strings.CutPrefix(urlPath, prefix+"/")
	if !found {
		return "", "", false
	}

	// extracted names never hold a backslash or NUL; ".." is refused only as
	// a whole segment, the same rule extraction applies
	if strings.ContainsAny(rest, "\x00\\") || pathutil.HasDotSegments(rest) {
		return "", "", false
	}

	id, file, found = strings.Cut(rest, "/")
	if !found || file == "" || strings.HasSuffix(file, "/") {
		return "", "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", "", false
	}
	if !fs.ValidPath(file) {
		return "", "", false
	}
	return id, file, true
}
