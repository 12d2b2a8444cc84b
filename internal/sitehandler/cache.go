package sitehandler

import (
	"path"
	"strings"
)

// assetExtensions get AssetCacheControl; html and extensionless files get
// HTMLCacheControl; everything else OtherCacheControl.
var assetExtensions = map[string]bool{}

func init() {
	for _, ext := range strings.Fields(`.css .js .mjs .wasm .map
		.png .jpg .jpeg .webp .gif .svg .ico
		.woff .woff2 .ttf .otf
		.mp3 .ogg .wav .mp4 .webm`) {
		assetExtensions[ext] = true
	}
}

func (o *Options) cacheControl(name string) string {
	switch ext := strings.ToLower(path.Ext(name)); {
	case ext == "", ext == ".html", ext == ".htm":
		return o.HTMLCacheControl
	case assetExtensions[ext]:
		return o.AssetCacheControl
	default:
		return o.OtherCacheControl
	}
}
