package rewrite

import (
	"net/http"
	"strings"
)

// locationHeaders carry a single URL.
var locationHeaders = []string{"Location", "Content-Location"}

// Headers rewrites the URL-bearing response headers of h in place: Location,
// Content-Location and the target of Refresh. It returns the number of
// headers fn changed.
func Headers(h http.Header, fn LinkFunc) int {
	n := 0
	for _, key := range locationHeaders {
		v := h.Get(key)
		if v == "" {
			continue
		}
		if nv := fn(v); nv != v {
			h.Set(key, nv)
			n++
		}
	}
	if v := h.Get("Refresh"); v != "" {
		if nv := Refresh(v, fn); nv != v {
			h.Set("Refresh", nv)
			n++
		}
	}
	return n
}

// Refresh rewrites the URL of a Refresh value such as "5; url=/next".
// Values without a URL are returned unchanged.
func Refresh(v string, fn LinkFunc) string {
	i := strings.Index(strings.ToLower(v), "url=")
	if i < 0 {
		return v
	}
	start := i + len("url=")
	link := v[start:]
	quote := ""
	if len(link) > 0 && (link[0] == '\'' || link[0] == '"') {
		quote = link[:1]
		link = strings.TrimSuffix(link[1:], quote)
	}
	link = strings.TrimSpace(link)
	nl := fn(link)
	if nl == link {
		return v
	}
	return v[:start] + quote + nl + quote
}
