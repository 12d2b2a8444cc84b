package sitehandler

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/keithlinneman/playdrop/internal/log"
	"github.com/keithlinneman/playdrop/internal/uploads"
)

var ErrInvalidOptions = errors.New("sitehandler: invalid options")

// Catalog looks up published uploads.
type Catalog interface {
	Get(id string) (uploads.Upload, error)
}

type Options struct {
	Logger log.Logger
	// Published uploads
	Uploads Catalog
	// Prefix is the URL path uploads are served under, e.g. "/play".
	Prefix string
	// fallback FS for the 404 page
	FallbackFS      fs.FS
	Fallback404File string // default: "404.html"

	// ContentSecurityPolicy replaces the site-wide policy on served upload
	// content, which usually needs inline scripts and styles.
	ContentSecurityPolicy string

	// Cache policies applied by file extension.
	HTMLCacheControl  string // default: "no-cache"
	AssetCacheControl string // default: "public, max-age=3600"
	OtherCacheControl string // default: "public, max-age=300"
}

// DefaultContentSecurityPolicy allows self-contained uploads to run inline
// code while still blocking framing and plugins.
const DefaultContentSecurityPolicy = "default-src 'self' data: blob:; script-src 'self' 'unsafe-inline' 'unsafe-eval' blob:; style-src 'self' 'unsafe-inline'; img-src 'self' data: blob:; media-src 'self' data: blob:; worker-src 'self' blob:; base-uri 'self'; form-action 'self'; frame-ancestors 'self'; object-src 'none'"

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	o.Prefix = "/" + strings.Trim(o.Prefix, "/")
	if o.Fallback404File == "" {
		o.Fallback404File = "404.html"
	}
	if o.ContentSecurityPolicy == "" {
		o.ContentSecurityPolicy = DefaultContentSecurityPolicy
	}
	// uploads expire, so nothing is marked immutable
	if o.HTMLCacheControl == "" {
		o.HTMLCacheControl = "no-cache"
	}
	if o.AssetCacheControl == "" {
		o.AssetCacheControl = "public, max-age=3600"
	}
	if o.OtherCacheControl == "" {
		o.OtherCacheControl = "public, max-age=300"
	}
}

func (o *Options) validate() error {
	if o.Uploads == nil {
		return fmt.Errorf("%w: Uploads is nil", ErrInvalidOptions)
	}
	if o.Prefix == "/" {
		return fmt.Errorf("%w: Prefix must not be the site root", ErrInvalidOptions)
	}
	// fallback 404 is optional; we degrade to plain text if missing
	return nil
}
