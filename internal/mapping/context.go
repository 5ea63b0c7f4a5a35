// Package mapping translates URLs between the address space a client sees
// in front of a mount point and the address space of the backend target
// behind it.
package mapping

import (
	"net/http"
	"strconv"
	"strings"

	"mount-proxy/internal/urlspace"
)

// Request headers consulted when building a Context.
const (
	HeaderIsSSL            = "IsSSL"
	HeaderXIsSSL           = "X-IsSSL"
	HeaderForwardedProto   = "X-Forwarded-Proto"
	HeaderForwardedHost    = "X-Forwarded-Host"
	HeaderForwardedRequest = "X-X-Forwarded-Request" // original request URI seen by the first proxy
)

// ServerConfig is the public identity of this server.
type ServerConfig struct {
	Hostname  string
	Port      int // 0 means absent
	Protocol  string
	HTTPSPort int // 0 means absent
}

// TargetConfig describes the backend a mount forwards to.
type TargetConfig struct {
	URL string
}

// Request is the part of an inbound request the mapping layer reads.
type Request struct {
	Header http.Header
	Host   string
	URI    string // request target, e.g. "/xyz/a?b=c"
	Server ServerConfig
}

// FromHTTP extracts a Request from r.
func FromHTTP(r *http.Request, server ServerConfig) Request {
	return Request{
		Header: r.Header,
		Host:   r.Host,
		URI:    r.URL.RequestURI(),
		Server: server,
	}
}

// Context is the immutable per-request state every mapping operation reads.
type Context struct {
	Protocol     string        // effective client protocol
	Host         string        // first X-Forwarded-Host entry, if any
	External     *urlspace.URL // URL as seen by the client in front of all proxies
	Server       *urlspace.URL // this server as addressed by the request
	Target       *urlspace.URL // backend base URL, nil without a target
	Mount        string        // normalized mount prefix, "" for root
	RequestURI   string
	ServerConfig ServerConfig
}

// NewContext derives the mapping context of req for an optional target and
// mount. Missing pieces stay nil; construction never fails.
func NewContext(req Request, target *TargetConfig, mount string) *Context {
	h := req.Header
	if h == nil {
		h = http.Header{}
	}
	cfg := req.Server
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}

	c := &Context{
		Protocol:     requestProtocol(h, cfg),
		Host:         firstToken(h.Get(HeaderForwardedHost)),
		Mount:        NormalizeMount(mount),
		RequestURI:   req.URI,
		ServerConfig: cfg,
	}
	if c.RequestURI == "" {
		c.RequestURI = "/"
	}

	if fwd := h.Get(HeaderForwardedRequest); c.Protocol != "" && c.Host != "" && fwd != "" {
		if u, err := urlspace.Parse(c.Protocol + "://" + c.Host + fwd); err == nil {
			c.External = &u
		}
	}

	host := req.Host
	if host == "" {
		host = cfg.Hostname
		if cfg.Port != 0 {
			host += ":" + strconv.Itoa(cfg.Port)
		}
	}
	if u, err := urlspace.Parse(c.Protocol + "://" + host); err == nil {
		c.Server = &u
	}

	if target != nil && target.URL != "" {
		if u, err := urlspace.Parse(target.URL); err == nil {
			c.Target = &u
		}
	}
	return c
}

func requestProtocol(h http.Header, cfg ServerConfig) string {
	if truthy(h.Get(HeaderIsSSL)) || truthy(h.Get(HeaderXIsSSL)) {
		return "https"
	}
	if p := firstToken(h.Get(HeaderForwardedProto)); p != "" {
		return strings.ToLower(p)
	}
	if cfg.Protocol != "" {
		return strings.ToLower(cfg.Protocol)
	}
	return "http"
}

// truthy treats any non-empty header value as set, except explicit false
// spellings.
func truthy(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return !strings.EqualFold(v, "off") && !strings.EqualFold(v, "no")
}

// firstToken returns the first entry of a comma or space separated header
// value, so "m.x-x.io, proxy1:8080 prx2" yields "m.x-x.io".
func firstToken(v string) string {
	fields := strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// NormalizeMount makes mount start with '/', collapses repeated slashes and
// drops a trailing slash. The root mount normalizes to "".
func NormalizeMount(mount string) string {
	if mount == "" {
		return ""
	}
	m := urlspace.CollapseSlashes("/" + mount)
	return strings.TrimSuffix(m, "/")
}

// prefix is the URL that defines the scope of this context.
func (c *Context) prefix() *urlspace.URL {
	if c.Target != nil {
		return c.Target
	}
	return c.Server
}
