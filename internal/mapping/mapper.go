package mapping

import (
	"log/slog"
	"strconv"

	"mount-proxy/internal/urlspace"
)

// Mapper creates per-request Proxy values and offers the request-level
// helpers that do not belong to a specific target.
type Mapper struct {
	logger *slog.Logger
	cache  *urlspace.Cache
}

// NewMapper creates a Mapper. Relativize results are memoized in a cache
// owned by the Mapper.
func NewMapper(logger *slog.Logger) *Mapper {
	return &Mapper{
		logger: logger.With("component", "mapper"),
		cache:  urlspace.NewCache(urlspace.DefaultCacheSize),
	}
}

// For returns the mapping operations for req, forwarding to target below
// mount. Without a target the server itself is the target.
func (m *Mapper) For(req Request, target *TargetConfig, mount string) *Proxy {
	return &Proxy{
		Context: NewContext(req, target, mount),
		logger:  m.logger,
		cache:   m.cache,
	}
}

// Absolutize resolves rel against the current request. By default the
// server's own context is used; pass proxied to resolve in terms of the
// backend of a mounted proxy instead.
func (m *Mapper) Absolutize(req Request, rel string, withAuthority bool, proxied *Proxy) string {
	p := proxied
	if p == nil {
		p = m.For(req, nil, "")
	}
	return p.Resolve(rel, withAuthority)
}

// Externalize returns an absolute URL for rel as the client in front of all
// proxies would address it, using the X-Forwarded-Host and forwarded request
// headers. Without forwarding headers it falls back to the server's own
// absolute URL.
func (m *Mapper) Externalize(req Request, rel string) string {
	u := m.Absolutize(req, rel, true, nil)
	p := m.For(req, nil, "")
	current := p.Forward(urlspace.RawRef(p.RequestURI), true, false).String()
	if ext, ok := p.Externalize(current, urlspace.RawRef(u)); ok {
		return ext.String()
	}
	return u
}

// Internalize returns an absolute URL for rel addressed to this server by its
// configured identity, ignoring Host and forwarding headers.
func (m *Mapper) Internalize(req Request, rel string) string {
	cfg := req.Server
	protocol := cfg.Protocol
	if protocol == "" {
		protocol = "http"
	}
	hostname := cfg.Hostname
	if hostname == "" {
		hostname = "localhost"
	}
	self := protocol + "://" + hostname
	if cfg.Port != 0 {
		self += ":" + strconv.Itoa(cfg.Port)
	}
	return m.For(req, &TargetConfig{URL: self}, "").Resolve(rel, true)
}

// Secure returns the absolute https form of the current page, moving the
// configured http port to the configured https port. It reports false when
// the page is already served over a secure protocol.
func (m *Mapper) Secure(req Request) (string, bool) {
	p := m.For(req, nil, "")
	u := urlspace.RawRef(p.Resolve(p.RequestURI, true)).URL()
	if u.Protocol == "" || urlspace.IsSecure(u.Protocol) {
		return "", false
	}
	u.Protocol, u.Port = p.switchProtocol(u.Protocol, u.Port)
	return u.String(), true
}
