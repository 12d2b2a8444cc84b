// Package pathutil validates untrusted relative paths before they are joined
// onto a directory on disk or served from one.
package pathutil

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyPath is returned when nothing remains after normalization.
	ErrEmptyPath = errors.New("pathutil: empty path")
	// ErrAbsolutePath is returned for paths rooted under any platform convention.
	ErrAbsolutePath = errors.New("pathutil: absolute path")
	// ErrTraversal is returned when a ".." segment survives normalization.
	ErrTraversal = errors.New("pathutil: parent directory traversal")
	// ErrInvalidByte is returned for paths containing NUL.
	ErrInvalidByte = errors.New("pathutil: invalid byte in path")
)

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// CleanEntryPath normalizes an archive entry name into a slash-separated
// relative path that is safe to join onto an extraction root.
//
// Separators are normalized first ("\" becomes "/"), then empty and "."
// segments are dropped. The path is rejected if it is absolute under unix,
// windows drive, or UNC conventions, if any remaining segment is "..", or if
// nothing is left. The same input always produces the same result.
func CleanEntryPath(raw string) (string, error) {
	if strings.IndexByte(raw, 0) >= 0 {
		return "", ErrInvalidByte
	}

	p := strings.ReplaceAll(raw, `\`, "/")
	if isAbs(p) {
		return "", ErrAbsolutePath
	}

	segs := strings.Split(p, "/")
	out := segs[:0]
	for _, seg := range segs {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", ErrTraversal
		}
		out = append(out, seg)
	}
	if len(out) == 0 {
		return "", ErrEmptyPath
	}
	return strings.Join(out, "/"), nil
}

// isAbs is platform independent: "/x", "//host/share" and "C:..." are all
// treated as absolute regardless of the OS we run on.
func isAbs(p string) bool {
	if strings.HasPrefix(p, "/") {
		return true
	}
	if len(p) >= 2 && p[1] == ':' && isASCIILetter(p[0]) {
		return true
	}
	return false
}

func isASCIILetter(b byte) bool {
	return ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}
