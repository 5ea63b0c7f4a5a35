package mapping

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"mount-proxy/internal/urlspace"
)

func newTestMapper() *Mapper {
	return NewMapper(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// testRequest builds a Request for uri with the given headers. A "Host"
// entry sets the Host header.
func testRequest(uri string, server ServerConfig, headers map[string]string) Request {
	req := Request{Header: http.Header{}, URI: uri, Server: server}
	for k, v := range headers {
		if k == "Host" {
			req.Host = v
			continue
		}
		req.Header.Set(k, v)
	}
	return req
}

func TestNewContext_Protocol(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		server  ServerConfig
		want    string
	}{
		{"default", nil, ServerConfig{}, "http"},
		{"server config", nil, ServerConfig{Protocol: "HTTPS"}, "https"},
		{"x-isssl", map[string]string{"X-IsSSL": "true"}, ServerConfig{}, "https"},
		{"isssl any value", map[string]string{"isssl": "yes-please"}, ServerConfig{}, "https"},
		{"x-isssl false", map[string]string{"X-IsSSL": "false"}, ServerConfig{}, "http"},
		{"forwarded proto", map[string]string{"X-Forwarded-Proto": "https, http"}, ServerConfig{Protocol: "http"}, "https"},
		{"isssl beats forwarded proto", map[string]string{"X-IsSSL": "1", "X-Forwarded-Proto": "http"}, ServerConfig{}, "https"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewContext(testRequest("/", tt.server, tt.headers), nil, "")
			if c.Protocol != tt.want {
				t.Errorf("Protocol = %q, want %q", c.Protocol, tt.want)
			}
		})
	}
}

func TestNewContext_HostsAndExternal(t *testing.T) {
	req := testRequest("/ping/bla/", ServerConfig{Hostname: "internal"}, map[string]string{
		"Host":                  "www.x-x.io:8080",
		"X-Forwarded-Host":      " m.x-x.io, proxy1:8080 prx2",
		"X-X-Forwarded-Request": "/blablubber/ping/bla/?x=1",
	})
	c := NewContext(req, &TargetConfig{URL: "http://server:8080/target/path"}, "xyz/")

	if c.Host != "m.x-x.io" {
		t.Errorf("Host = %q, want %q", c.Host, "m.x-x.io")
	}
	if c.External == nil {
		t.Fatal("External = nil, want forwarded client URL")
	}
	if got := c.External.String(); got != "http://m.x-x.io/blablubber/ping/bla/?x=1" {
		t.Errorf("External = %q, want %q", got, "http://m.x-x.io/blablubber/ping/bla/?x=1")
	}
	if got := c.Server.String(); got != "http://www.x-x.io:8080" {
		t.Errorf("Server = %q, want %q", got, "http://www.x-x.io:8080")
	}
	if got := c.Target.String(); got != "http://server:8080/target/path" {
		t.Errorf("Target = %q, want %q", got, "http://server:8080/target/path")
	}
	if c.Mount != "/xyz" {
		t.Errorf("Mount = %q, want %q", c.Mount, "/xyz")
	}
}

func TestNewContext_Fallbacks(t *testing.T) {
	c := NewContext(testRequest("", ServerConfig{Hostname: "srv", Port: 8080}, map[string]string{
		"X-Forwarded-Host": "m.x-x.io",
	}), nil, "")

	if c.External != nil {
		t.Errorf("External = %v, want nil without forwarded request header", c.External)
	}
	if got := c.Server.String(); got != "http://srv:8080" {
		t.Errorf("Server = %q, want %q", got, "http://srv:8080")
	}
	if c.Target != nil {
		t.Errorf("Target = %v, want nil", c.Target)
	}
	if c.RequestURI != "/" {
		t.Errorf("RequestURI = %q, want %q", c.RequestURI, "/")
	}

	c = NewContext(Request{}, nil, "")
	if got := c.Server.String(); got != "http://localhost" {
		t.Errorf("Server = %q, want %q", got, "http://localhost")
	}
}

func TestNormalizeMount(t *testing.T) {
	tests := map[string]string{
		"":             "",
		"/":            "",
		"xyz":          "/xyz",
		"/xyz/":        "/xyz",
		"//a//b///":    "/a/b",
		"/mountpath/x": "/mountpath/x",
	}
	for in, want := range tests {
		if got := NormalizeMount(in); got != want {
			t.Errorf("NormalizeMount(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFromHTTP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://front.example/xyz/a?b=c", http.NoBody)
	r.Header.Set("X-Forwarded-Host", "ext.example")

	req := FromHTTP(r, ServerConfig{Hostname: "internal"})
	if req.Host != "front.example" {
		t.Errorf("Host = %q, want %q", req.Host, "front.example")
	}
	if req.URI != "/xyz/a?b=c" {
		t.Errorf("URI = %q, want %q", req.URI, "/xyz/a?b=c")
	}
	if req.Header.Get("X-Forwarded-Host") != "ext.example" {
		t.Error("headers not carried over")
	}
	if req.Server.Hostname != "internal" {
		t.Errorf("Server.Hostname = %q, want %q", req.Server.Hostname, "internal")
	}
}

func TestInternal(t *testing.T) {
	target := &TargetConfig{URL: "http://www.x-x.io/mobile-portal"}
	plain := NewContext(testRequest("/", ServerConfig{}, nil), target, "")
	rootTarget := NewContext(testRequest("/", ServerConfig{}, nil), &TargetConfig{URL: "http://wiki.internal:3000/"}, "/wiki")
	secure := NewContext(testRequest("/", ServerConfig{}, map[string]string{"X-IsSSL": "true"}), target, "")

	tests := []struct {
		name       string
		c          *Context
		u          string
		wantOK     bool
		wantSwitch bool
	}{
		{"prefix itself", plain, "http://www.x-x.io/mobile-portal", true, false},
		{"below prefix", plain, "http://www.x-x.io/mobile-portal/tarife", true, false},
		{"switch to https", plain, "https://www.x-x.io/mobile-portal/tarife/shop", true, true},
		{"other path", plain, "http://www.x-x.io/home", false, false},
		{"other host", plain, "http://other.io/mobile-portal", false, false},
		{"other scheme", plain, "ftp://www.x-x.io/mobile-portal", false, false},
		{"unrelated s scheme", plain, "ws://www.x-x.io/mobile-portal", false, false},
		{"explicit default port", plain, "http://www.x-x.io:80/mobile-portal", true, false},
		{"other port", plain, "http://www.x-x.io:8080/mobile-portal", false, false},
		{"switch tolerates port", plain, "https://www.x-x.io:8443/mobile-portal", true, true},
		{"path only", plain, "/mobile-portal/x", true, false},
		{"path outside prefix", plain, "/home", false, false},
		{"empty", plain, "", false, false},
		{"secure request sees http as switch", secure, "http://www.x-x.io/mobile-portal/a", true, true},
		{"secure request same scheme", secure, "https://www.x-x.io/mobile-portal/a", true, false},
		{"bare host of root target", rootTarget, "http://wiki.internal:3000", true, false},
		{"bare host of path target", plain, "http://www.x-x.io", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope, ok := tt.c.Internal(urlspace.RawRef(tt.u))
			if ok != tt.wantOK {
				t.Fatalf("Internal(%q) ok = %v, want %v", tt.u, ok, tt.wantOK)
			}
			if scope.SecureSwitch != tt.wantSwitch {
				t.Errorf("Internal(%q) SecureSwitch = %v, want %v", tt.u, scope.SecureSwitch, tt.wantSwitch)
			}
		})
	}
}

func TestInternal_ServerScope(t *testing.T) {
	c := NewContext(testRequest("/", ServerConfig{}, map[string]string{"Host": "host:8080"}), nil, "")

	if _, ok := c.Internal(urlspace.RawRef("http://host:8080/anything")); !ok {
		t.Error("server URL should be internal without a target")
	}
	if _, ok := c.Internal(urlspace.RawRef("http://host/anything")); ok {
		t.Error("default port differs from 8080 and should be external")
	}
	if scope, ok := (&Context{}).Internal(urlspace.RawRef("/x")); !ok || scope.SecureSwitch {
		t.Errorf("no scope at all = (%+v, %v), want internal without switch", scope, ok)
	}
	if _, ok := c.Internal(urlspace.ParsedRef(urlspace.URL{Protocol: "http", Hostname: "host", Port: "8080"})); !ok {
		t.Error("parsed server URL should be internal")
	}
}
