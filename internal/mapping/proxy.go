package mapping

import (
	"log/slog"
	"strings"

	"mount-proxy/internal/urlspace"
)

// Proxy bundles the mapping operations for one request, one target and one
// mount. It is created per request by Mapper.For and must not outlive it.
type Proxy struct {
	*Context

	logger *slog.Logger
	cache  *urlspace.Cache
}

// Relativize rewrites a link found in backend content into a link that is
// valid for the client: relative to the current client location when it is
// in scope, absolute when it switches protocol, and untouched when it points
// outside the target. Relative links survive any chain of proxies in front of
// this one.
func (p *Proxy) Relativize(link string) string {
	if link == "" {
		return link
	}
	// The request protocol is assumed for the backend so that a protocol
	// switch in link is detected.
	current := p.Forward(urlspace.RawRef(p.RequestURI), true, true).String()
	resolved, err := urlspace.Resolve(current, link)
	if err != nil {
		p.logger.Debug("link left as is", "base", current, "link", link, "err", err)
		return link
	}
	abs := urlspace.RawRef(resolved)

	scope, ok := p.Internal(abs)
	if !ok {
		return link
	}
	if scope.SecureSwitch {
		return p.Reverse(abs, AuthorityAlways).String()
	}

	queryHash := ""
	queryHashIndex := strings.IndexAny(link, "?#")
	if queryHashIndex >= 0 {
		queryHash = link[queryHashIndex:]
	}

	cur := p.Forward(urlspace.RawRef(p.RequestURI), false, false).URL()
	target := abs.URL()
	if target.Pathname == cur.Pathname && queryHashIndex == 0 {
		return queryHash
	}

	curPath, targetPath := cur.Pathname, target.Pathname
	if curPath == "" {
		curPath = "/"
	}
	if targetPath == "" {
		targetPath = "."
	}
	return p.cache.Relativize(curPath, targetPath) + queryHash
}

// Resolve resolves rel against the backend form of the current request. The
// result carries protocol, host and port only when withAuthority is set.
// Unresolvable references are logged and returned unchanged.
func (p *Proxy) Resolve(rel string, withAuthority bool) string {
	current := p.Forward(urlspace.RawRef(p.RequestURI), true, false).String()
	abs, err := urlspace.Resolve(current, rel)
	if err != nil {
		p.logger.Error("could not resolve", "base", current, "ref", rel, "err", err)
		return rel
	}
	if !withAuthority {
		return urlspace.RawRef(abs).URL().Path()
	}
	return abs
}
