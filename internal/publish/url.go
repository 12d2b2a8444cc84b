package publish

import (
	"net/url"
	"strings"
)

// PublicURL joins the public prefix, the upload id and the slash-separated
// entry path into an escaped URL path, e.g. "/play/<id>/sub/page.html".
func PublicURL(prefix, id, rel string) string {
	var b strings.Builder
	b.WriteString("/")
	if p := strings.Trim(prefix, "/"); p != "" {
		b.WriteString(p)
		b.WriteString("/")
	}
	b.WriteString(url.PathEscape(id))
	for _, seg := range strings.Split(rel, "/") {
		if seg == "" {
			continue
		}
		b.WriteString("/")
		b.WriteString(url.PathEscape(seg))
	}
	return b.String()
}
