// Package webassets embeds the static pages served when no upload matches.
package webassets

import (
	"embed"
	"fmt"
	"io/fs"
)

// fallback/ must exist and have at least one file to satisfy go:embed
//
//go:embed fallback
var embedded embed.FS

// FallbackFS holds 404.html.
func FallbackFS() fs.FS {
	sub, err := fs.Sub(embedded, "fallback")
	if err != nil {
		panic(fmt.Errorf("webassets: fallback subfs: %w", err))
	}
	return sub
}
