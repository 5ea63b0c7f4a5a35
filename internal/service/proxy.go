// Package service implements the core proxy forwarding logic: choosing a
// mount, mapping the request into the backend's address space and mapping
// links in the response back into the client's.
package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"sort"
	"strings"

	"mount-proxy/internal/client"
	"mount-proxy/internal/config"
	"mount-proxy/internal/mapping"
	"mount-proxy/internal/metrics"
	"mount-proxy/internal/model"
	"mount-proxy/internal/rewrite"
	"mount-proxy/internal/urlspace"
)

// ErrNoMount is returned when the request path lies below no configured mount.
var ErrNoMount = errors.New("no mount for request path")

// hopHeaders are connection-level headers that are never forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ProxyService forwards requests to the target of the matching mount.
type ProxyService struct {
	client  *client.UpstreamClient
	mapper  *mapping.Mapper
	metrics *metrics.Metrics
	server  mapping.ServerConfig
	mounts  []config.MountConfig // longest path first
	logger  *slog.Logger
}

// NewProxyService creates a ProxyService. The metrics parameter is optional.
func NewProxyService(c *client.UpstreamClient, mapper *mapping.Mapper, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *ProxyService {
	mounts := make([]config.MountConfig, len(cfg.Mounts))
	for i, mc := range cfg.Mounts {
		mc.Path = mapping.NormalizeMount(mc.Path)
		mounts[i] = mc
	}
	sort.SliceStable(mounts, func(i, j int) bool {
		return len(mounts[i].Path) > len(mounts[j].Path)
	})

	return &ProxyService{
		client:  c,
		mapper:  mapper,
		metrics: m,
		server:  cfg.Server.Identity(),
		mounts:  mounts,
		logger:  logger.With("component", "proxy_service"),
	}
}

// Mounts returns the configured mounts, longest path first.
func (s *ProxyService) Mounts() []config.MountConfig {
	return s.mounts
}

// Match returns the mount with the longest path covering path.
func (s *ProxyService) Match(path string) (config.MountConfig, bool) {
	for _, m := range s.mounts {
		if m.Path == "" || path == m.Path || strings.HasPrefix(path, m.Path+"/") {
			return m, true
		}
	}
	return config.MountConfig{}, false
}

// Forward sends pr to the target of its mount and returns the response with
// its links mapped back into client space. The caller is responsible for
// closing the response body.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	path := pr.RequestURI
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	mount, ok := s.Match(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoMount, path)
	}

	p := s.mapper.For(s.mappingRequest(pr), &mapping.TargetConfig{URL: mount.Target}, mount.Path)
	upstreamURL := p.Forward(urlspace.RawRef(pr.RequestURI), true, false).String()

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"mount", mount.Path,
		"upstream", upstreamURL,
	)

	header := s.requestHeaders(pr, p, mount.RewriteContent)
	resp, err := s.client.DoStream(pr.Ctx, pr.Method, upstreamURL, header, pr.Body)
	if err != nil {
		return nil, fmt.Errorf("forward to %s: %w", mount.Target, err)
	}

	resp.Header = filterResponseHeaders(resp.Header)
	s.rewriteHeaders(resp.Header, p, upstreamURL)
	if mount.RewriteContent && isHTML(resp.Header) {
		resp.Body = s.rewriteBody(resp.Body, p)
		resp.Header.Del("Content-Length")
	}
	return resp, nil
}

func (s *ProxyService) mappingRequest(pr *model.ProxyRequest) mapping.Request {
	return mapping.Request{
		Header: pr.Header,
		Host:   pr.Host,
		URI:    pr.RequestURI,
		Server: s.server,
	}
}

// requestHeaders copies the end-to-end headers of pr and adds the forwarding
// headers a proxy behind this one needs to reconstruct the client's URL.
// Forwarding headers set by a proxy in front of this one are kept.
func (s *ProxyService) requestHeaders(pr *model.ProxyRequest, p *mapping.Proxy, rewriteContent bool) http.Header {
	dst := pr.Header.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	removeHopHeaders(dst)

	dst.Set(mapping.HeaderForwardedProto, p.Protocol)
	if dst.Get(mapping.HeaderForwardedHost) == "" && pr.Host != "" {
		dst.Set(mapping.HeaderForwardedHost, pr.Host)
	}
	if dst.Get(mapping.HeaderForwardedRequest) == "" {
		dst.Set(mapping.HeaderForwardedRequest, pr.RequestURI)
	}
	if pr.RemoteIP != "" {
		if prior := dst.Get("X-Forwarded-For"); prior != "" {
			dst.Set("X-Forwarded-For", prior+", "+pr.RemoteIP)
		} else {
			dst.Set("X-Forwarded-For", pr.RemoteIP)
		}
	}
	// Bodies that get rewritten must arrive uncompressed; the transport
	// negotiates and decodes gzip on its own when the header is absent.
	if rewriteContent {
		dst.Del("Accept-Encoding")
	}
	return dst
}

func filterResponseHeaders(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	removeHopHeaders(dst)
	return dst
}

func removeHopHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

// rewriteHeaders maps Location, Content-Location and Refresh back into client
// space as absolute URLs. Relative values are resolved against the upstream
// URL first; links outside the target stay as they are.
func (s *ProxyService) rewriteHeaders(h http.Header, p *mapping.Proxy, upstreamURL string) {
	n := rewrite.Headers(h, func(link string) string {
		abs, err := urlspace.Resolve(upstreamURL, link)
		if err != nil {
			return link
		}
		ref := urlspace.RawRef(abs)
		if _, ok := p.Internal(ref); !ok {
			return link
		}
		return p.Reverse(ref, mapping.AuthorityAlways).String()
	})
	if n > 0 && s.metrics != nil {
		s.metrics.LinksRewritten.WithLabelValues(metrics.KindHeader).Add(float64(n))
	}
}

// rewriteBody streams body through the HTML link rewriter.
func (s *ProxyService) rewriteBody(body io.ReadCloser, p *mapping.Proxy) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		defer func() { _ = body.Close() }()
		n, err := rewrite.HTML(pw, body, p.Relativize)
		if n > 0 && s.metrics != nil {
			s.metrics.LinksRewritten.WithLabelValues(metrics.KindHTML).Add(float64(n))
		}
		if err != nil && !errors.Is(err, io.ErrClosedPipe) {
			s.logger.Warn("rewriting html", "err", err)
		}
		_ = pw.CloseWithError(err)
	}()
	return pr
}

func isHTML(h http.Header) bool {
	if enc := h.Get("Content-Encoding"); enc != "" && !strings.EqualFold(enc, "identity") {
		return false
	}
	mt, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}
