// Package urlspace implements context-free URL path algebra: a structured URL
// record, RFC 1808 relative resolution, relativization and path-embedded
// session tokens.
package urlspace

import (
	"net/url"
	"strings"
)

// URL is a structured URL record. Empty Protocol, Hostname, Port, Search and
// Hash mean the component is absent and should be inherited from context.
// Search keeps its leading '?' and Hash its leading '#'.
type URL struct {
	Protocol string // without trailing ':'
	Hostname string
	Port     string
	Pathname string
	Search   string
	Hash     string
}

// Parse splits s into a URL record. Scheme and hostname are lower-cased; the
// path is kept in its escaped form.
func Parse(s string) (URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return URL{}, err
	}
	out := URL{
		Protocol: strings.ToLower(u.Scheme),
		Hostname: strings.ToLower(u.Hostname()),
		Port:     u.Port(),
		Pathname: u.EscapedPath(),
	}
	if u.Opaque != "" {
		out.Pathname = u.Opaque
	}
	if u.ForceQuery || u.RawQuery != "" {
		out.Search = "?" + u.RawQuery
	}
	if u.Fragment != "" || strings.HasSuffix(s, "#") {
		out.Hash = "#" + u.EscapedFragment()
	}
	return out, nil
}

// parseLoose never fails: input net/url rejects is split by hand into
// pathname, search and hash.
func parseLoose(s string) URL {
	if u, err := Parse(s); err == nil {
		return u
	}
	var out URL
	if i := strings.IndexByte(s, '#'); i >= 0 {
		out.Hash = s[i:]
		s = s[:i]
	}
	if i := strings.IndexByte(s, '?'); i >= 0 {
		out.Search = s[i:]
		s = s[:i]
	}
	out.Pathname = s
	return out
}

// String formats the record back into a URL reference.
func (u URL) String() string {
	var b strings.Builder
	if u.Protocol != "" {
		b.WriteString(u.Protocol)
		b.WriteByte(':')
	}
	if u.Hostname != "" {
		b.WriteString("//")
		if strings.IndexByte(u.Hostname, ':') >= 0 {
			b.WriteString("[" + u.Hostname + "]")
		} else {
			b.WriteString(u.Hostname)
		}
		if u.Port != "" {
			b.WriteByte(':')
			b.WriteString(u.Port)
		}
		if u.Pathname != "" && u.Pathname[0] != '/' {
			b.WriteByte('/')
		}
	}
	b.WriteString(u.Pathname)
	b.WriteString(u.Search)
	b.WriteString(u.Hash)
	return b.String()
}

// Path returns the pathname followed by the search component.
func (u URL) Path() string {
	return u.Pathname + u.Search
}

// HasAuthority reports whether the record carries a hostname.
func (u URL) HasAuthority() bool {
	return u.Hostname != ""
}

// Ref is either a raw URL string or a parsed URL record. Mapping functions
// return a Ref of the same kind they were given.
type Ref struct {
	raw    string
	url    URL
	parsed bool
}

// RawRef wraps a URL string.
func RawRef(s string) Ref {
	return Ref{raw: s}
}

// ParsedRef wraps a URL record.
func ParsedRef(u URL) Ref {
	return Ref{url: u, parsed: true}
}

// IsParsed reports whether r was built from a URL record.
func (r Ref) IsParsed() bool { return r.parsed }

// IsZero reports whether r is absent: an empty raw string or the zero Ref.
func (r Ref) IsZero() bool { return !r.parsed && r.raw == "" }

// URL returns the structured form of r.
func (r Ref) URL() URL {
	if r.parsed {
		return r.url
	}
	return parseLoose(r.raw)
}

// String returns the string form of r.
func (r Ref) String() string {
	if r.parsed {
		return r.url.String()
	}
	return r.raw
}

// With returns u wrapped in the same kind of Ref as r.
func (r Ref) With(u URL) Ref {
	if r.parsed {
		return ParsedRef(u)
	}
	return RawRef(u.String())
}

// CollapseSlashes replaces every run of '/' in p with a single '/'.
func CollapseSlashes(p string) string {
	if !strings.Contains(p, "//") {
		return p
	}
	var b strings.Builder
	b.Grow(len(p))
	prev := byte(0)
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c == '/' && prev == '/' {
			continue
		}
		b.WriteByte(c)
		prev = c
	}
	return b.String()
}
