package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"mount-proxy/internal/client"
	"mount-proxy/internal/config"
	"mount-proxy/internal/mapping"
	"mount-proxy/internal/metrics"
	"mount-proxy/internal/model"
)

func newTestService(t *testing.T, mounts []config.MountConfig, m *metrics.Metrics) *ProxyService {
	t.Helper()
	cfg := &config.Config{
		Mounts: mounts,
		Upstream: config.UpstreamConfig{
			TimeoutSeconds:  10,
			IdleConnections: 10,
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	uc := client.NewUpstreamClient(cfg, logger, m)
	return NewProxyService(uc, mapping.NewMapper(logger), cfg, m, logger)
}

func newTestRequest(uri string) *model.ProxyRequest {
	return &model.ProxyRequest{
		Ctx:        context.Background(),
		Method:     http.MethodGet,
		Host:       "front.example",
		RequestURI: uri,
		RemoteIP:   "192.0.2.7",
		Header:     http.Header{},
	}
}

func counterValue(t *testing.T, m *metrics.Metrics, kind string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() != "mount_proxy_links_rewritten_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "kind" && lp.GetValue() == kind {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestMatch(t *testing.T) {
	s := newTestService(t, []config.MountConfig{
		{Path: "/", Target: "http://root/"},
		{Path: "/a", Target: "http://a/"},
		{Path: "a/b/", Target: "http://ab/"},
	}, nil)

	tests := []struct {
		path string
		want string
	}{
		{"/a/b/c", "/a/b"},
		{"/a/b", "/a/b"},
		{"/a/bc", "/a"},
		{"/a", "/a"},
		{"/x", ""},
		{"/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			m, ok := s.Match(tt.path)
			if !ok {
				t.Fatalf("Match(%q) found no mount", tt.path)
			}
			if m.Path != tt.want {
				t.Errorf("Match(%q) = %q, want %q", tt.path, m.Path, tt.want)
			}
		})
	}
}

func TestForward_NoMount(t *testing.T) {
	s := newTestService(t, []config.MountConfig{{Path: "/m", Target: "http://backend/"}}, nil)

	_, err := s.Forward(newTestRequest("/other?x=1"))
	if !errors.Is(err, ErrNoMount) {
		t.Errorf("Forward() error = %v, want ErrNoMount", err)
	}
}

func TestForward_MapsRequest(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/t/page" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/t/page")
		}
		if r.URL.RawQuery != "x=1" {
			t.Errorf("query = %q, want %q", r.URL.RawQuery, "x=1")
		}
		want := map[string]string{
			"X-Forwarded-Proto":     "http",
			"X-Forwarded-Host":      "front.example",
			"X-X-Forwarded-Request": "/m/page?x=1",
			"X-Forwarded-For":       "192.0.2.7",
			"Accept":                "text/html",
			"X-Secret":              "",
			"Keep-Alive":            "",
		}
		for k, v := range want {
			if got := r.Header.Get(k); got != v {
				t.Errorf("header %s = %q, want %q", k, got, v)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer backend.Close()

	s := newTestService(t, []config.MountConfig{{Path: "/m", Target: backend.URL + "/t"}}, nil)

	pr := newTestRequest("/m/page?x=1")
	pr.Header.Set("Accept", "text/html")
	pr.Header.Set("Connection", "X-Secret")
	pr.Header.Set("X-Secret", "hop")
	pr.Header.Set("Keep-Alive", "timeout=5")

	resp, err := s.Forward(pr)
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %q, want %q", string(body), `{"ok":true}`)
	}
}

func TestForward_KeepsForwardingHeadersOfFrontProxy(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Forwarded-Host"); got != "m.x-x" {
			t.Errorf("X-Forwarded-Host = %q, want %q", got, "m.x-x")
		}
		if got := r.Header.Get("X-X-Forwarded-Request"); got != "/blablubber/m/a" {
			t.Errorf("X-X-Forwarded-Request = %q, want %q", got, "/blablubber/m/a")
		}
		if got := r.Header.Get("X-Forwarded-For"); got != "198.51.100.1, 192.0.2.7" {
			t.Errorf("X-Forwarded-For = %q, want %q", got, "198.51.100.1, 192.0.2.7")
		}
		if got := r.Header.Get("X-Forwarded-Proto"); got != "https" {
			t.Errorf("X-Forwarded-Proto = %q, want %q", got, "https")
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer backend.Close()

	s := newTestService(t, []config.MountConfig{{Path: "/m", Target: backend.URL}}, nil)

	pr := newTestRequest("/m/a")
	pr.Header.Set("X-Forwarded-Host", "m.x-x")
	pr.Header.Set("X-X-Forwarded-Request", "/blablubber/m/a")
	pr.Header.Set("X-Forwarded-For", "198.51.100.1")
	pr.Header.Set("X-IsSSL", "1")

	resp, err := s.Forward(pr)
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
}

func TestForward_RewritesLocation(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/t/relative":
			w.Header().Set("Location", "/t/next")
		case "/t/absolute":
			w.Header().Set("Location", "http://"+r.Host+"/t/next?y=2")
		default:
			w.Header().Set("Location", "http://elsewhere.example/x")
		}
		w.WriteHeader(http.StatusFound)
	}))
	defer backend.Close()

	m := metrics.New(metrics.DefaultPath, "/m")
	s := newTestService(t, []config.MountConfig{{Path: "/m", Target: backend.URL + "/t"}}, m)

	tests := []struct {
		uri  string
		want string
	}{
		{"/m/relative", "http://front.example/m/next"},
		{"/m/absolute", "http://front.example/m/next?y=2"},
		{"/m/external", "http://elsewhere.example/x"},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			resp, err := s.Forward(newTestRequest(tt.uri))
			if err != nil {
				t.Fatalf("Forward() error = %v", err)
			}
			_ = resp.Body.Close()

			if resp.StatusCode != http.StatusFound {
				t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusFound)
			}
			if got := resp.Header.Get("Location"); got != tt.want {
				t.Errorf("Location = %q, want %q", got, tt.want)
			}
		})
	}

	if got := counterValue(t, m, metrics.KindHeader); got != 2 {
		t.Errorf("header links rewritten = %v, want 2", got)
	}
}

func TestForward_RewritesBareHostLocation(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "http://"+r.Host)
		w.WriteHeader(http.StatusFound)
	}))
	defer backend.Close()

	s := newTestService(t, []config.MountConfig{{Path: "/wiki", Target: backend.URL + "/"}}, nil)

	resp, err := s.Forward(newTestRequest("/wiki/page"))
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	_ = resp.Body.Close()

	if got := resp.Header.Get("Location"); got != "http://front.example/wiki" {
		t.Errorf("Location = %q, want %q", got, "http://front.example/wiki")
	}
}

func TestForward_RewritesHTML(t *testing.T) {
	page := `<p><a href="/t/other">o</a><a href="http://elsewhere/x">e</a></p>`
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept-Encoding"); got != "" && got != "gzip" {
			t.Errorf("Accept-Encoding = %q, want client value dropped", got)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer backend.Close()

	m := metrics.New(metrics.DefaultPath, "/m", "/raw")
	s := newTestService(t, []config.MountConfig{
		{Path: "/m", Target: backend.URL + "/t", RewriteContent: true},
		{Path: "/raw", Target: backend.URL + "/t"},
	}, m)

	pr := newTestRequest("/m/page?x=1")
	pr.Header.Set("Accept-Encoding", "br")
	resp, err := s.Forward(pr)
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	want := `<p><a href="other">o</a><a href="http://elsewhere/x">e</a></p>`
	if string(body) != want {
		t.Errorf("body = %q, want %q", string(body), want)
	}
	if got := resp.Header.Get("Content-Length"); got != "" {
		t.Errorf("Content-Length = %q, want removed", got)
	}
	if got := counterValue(t, m, metrics.KindHTML); got != 1 {
		t.Errorf("html links rewritten = %v, want 1", got)
	}

	// Without rewrite_content the page passes through untouched.
	resp, err = s.Forward(newTestRequest("/raw/page"))
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != page {
		t.Errorf("body = %q, want %q", string(body), page)
	}
}

func TestFilterResponseHeaders(t *testing.T) {
	src := http.Header{
		"Content-Type":      {"text/html"},
		"Set-Cookie":        {"session=abc"},
		"Connection":        {"X-Hop"},
		"X-Hop":             {"1"},
		"Transfer-Encoding": {"chunked"},
		"Keep-Alive":        {"timeout=5"},
	}

	dst := filterResponseHeaders(src)

	tests := []struct {
		key     string
		wantLen int
	}{
		{"Content-Type", 1},
		{"Set-Cookie", 1},
		{"Connection", 0},
		{"X-Hop", 0},
		{"Transfer-Encoding", 0},
		{"Keep-Alive", 0},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := len(dst.Values(tt.key)); got != tt.wantLen {
				t.Errorf("header %q: got %d values, want %d", tt.key, got, tt.wantLen)
			}
		})
	}

	if len(src.Values("X-Hop")) != 1 {
		t.Error("filterResponseHeaders modified its input")
	}
}

func TestIsHTML(t *testing.T) {
	tests := []struct {
		contentType string
		encoding    string
		want        bool
	}{
		{"text/html", "", true},
		{"text/html; charset=utf-8", "", true},
		{"TEXT/HTML", "identity", true},
		{"application/xhtml+xml", "", true},
		{"text/html", "gzip", false},
		{"application/json", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.contentType+"/"+tt.encoding, func(t *testing.T) {
			h := http.Header{}
			h.Set("Content-Type", tt.contentType)
			if tt.encoding != "" {
				h.Set("Content-Encoding", tt.encoding)
			}
			if got := isHTML(h); got != tt.want {
				t.Errorf("isHTML(%q, %q) = %v, want %v", tt.contentType, tt.encoding, got, tt.want)
			}
		})
	}
}
