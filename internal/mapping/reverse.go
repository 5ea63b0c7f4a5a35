package mapping

import (
	"strconv"
	"strings"

	"mount-proxy/internal/urlspace"
)

// Authority controls whether Reverse emits an absolute URL.
type Authority int

const (
	// AuthorityAuto emits a path unless a protocol switch forces an
	// absolute URL.
	AuthorityAuto Authority = iota
	// AuthorityAlways emits protocol, host and port, e.g. for Location
	// headers.
	AuthorityAlways
	// AuthorityNever emits a path even for a protocol switch.
	AuthorityNever
)

// Reverse maps a backend URL back into client space. URLs outside the scope
// of the target are returned unchanged. For the mount "/mountpath/x" and the
// target "http://www.x-x.io/mobile-portal",
// "https://www.x-x.io/mobile-portal/foo/bar?f=1" becomes
// "https://<server>/mountpath/x/foo/bar?f=1".
//
// A switch between http and https can only be expressed by an absolute URL.
// Behind other proxies that URL is built from the client's original URL (see
// Externalize); otherwise the server's own authority is used with its
// protocol and port flipped.
func (c *Context) Reverse(u urlspace.Ref, auth Authority) urlspace.Ref {
	scope, ok := c.Internal(u)
	if !ok {
		return u
	}
	in := u.URL()

	withAuthority := auth == AuthorityAlways
	if scope.SecureSwitch && auth != AuthorityNever {
		if c.External != nil {
			current := c.Forward(urlspace.RawRef(c.RequestURI), true, false).String()
			if ext, ok := c.Externalize(current, u); ok {
				return ext
			}
		}
		withAuthority = true
	}

	pathname := in.Pathname
	if c.Target != nil {
		if tp := c.Target.Pathname; tp != "/" && tp != "" && strings.HasPrefix(pathname, tp) {
			pathname = pathname[len(tp):]
			// A target path with a trailing slash takes the separator with it.
			if pathname != "" && pathname[0] != '/' {
				pathname = "/" + pathname
			}
		}
	}
	if c.Mount != "" {
		pathname = c.Mount + pathname
	}

	out := urlspace.URL{
		Pathname: urlspace.CollapseSlashes(pathname),
		Search:   in.Search,
		Hash:     in.Hash,
	}
	if withAuthority && c.Server != nil {
		out.Hostname = c.Server.Hostname
		out.Protocol, out.Port = c.Server.Protocol, c.Server.Port
		if scope.SecureSwitch {
			out.Protocol, out.Port = c.switchProtocol(c.Server.Protocol, c.Server.Port)
		}
	}
	return u.With(out)
}

// switchProtocol flips protocol between its plain and secure variant. When
// port is the configured port of the current variant it is moved to the
// configured port of the other one, and dropped when that is the default.
func (c *Context) switchProtocol(protocol, port string) (string, string) {
	httpPort := c.ServerConfig.Port
	if httpPort == 0 {
		httpPort = urlspace.DefaultHTTPPort
	}
	httpsPort := c.ServerConfig.HTTPSPort
	if httpsPort == 0 {
		httpsPort = urlspace.DefaultHTTPSPort
	}

	secure := urlspace.IsSecure(protocol)
	current := urlspace.ParsePort(port)
	if !current.Valid {
		current = urlspace.DefaultPort("http")
		if secure {
			current = urlspace.DefaultPort("https")
		}
	}

	if secure {
		protocol = strings.TrimSuffix(protocol, "s")
		if current.N == httpsPort {
			port = portString(httpPort, urlspace.DefaultHTTPPort)
		}
	} else {
		protocol += "s"
		if current.N == httpPort {
			port = portString(httpsPort, urlspace.DefaultHTTPSPort)
		}
	}
	return protocol, port
}

func portString(port, def int) string {
	if port == def {
		return ""
	}
	return strconv.Itoa(port)
}

// Externalize builds the absolute client URL for the backend URL u when the
// request passed through other proxies that already rewrote the path.
// currentURL is the backend form of the current request. The longest common
// path suffix of currentURL and the client's original URL identifies the
// prefix each side added; u's backend prefix is replaced by the client's.
//
// With the client URL http://m.x-x/blablubber/ping/bla/ and the current URL
// http://www.x-x/mobile-portal/bla/, u = https://www.x-x/mobile-portal/foo
// becomes https://m.x-x/blablubber/ping/foo.
//
// A session token in u's last segment is kept: the backend, not the client,
// decides the current session. Externalize reports false when the request
// carries no forwarded client URL.
func (c *Context) Externalize(currentURL string, u urlspace.Ref) (urlspace.Ref, bool) {
	if c.External == nil {
		return u, false
	}
	in := u.URL()
	current := urlspace.RawRef(currentURL).URL()

	pathname, session, _ := urlspace.SplitSession(in.Pathname)
	currentPath := urlspace.StripSession(current.Pathname)
	externalPath := urlspace.StripSession(c.External.Pathname)

	suffix := commonPathSuffix(currentPath, externalPath)
	currentPrefix := currentPath[:len(currentPath)-len(suffix)]
	externalPrefix := externalPath[:len(externalPath)-len(suffix)]

	if strings.HasPrefix(pathname, currentPrefix) {
		pathname = pathname[len(currentPrefix):]
	}
	pathname = urlspace.AddSession(externalPrefix+pathname, session)

	return u.With(urlspace.URL{
		Protocol: in.Protocol,
		Hostname: c.External.Hostname,
		Port:     c.External.Port,
		Pathname: pathname,
		Search:   in.Search,
		Hash:     in.Hash,
	}), true
}

// commonPathSuffix returns the longest common suffix of a and b that starts
// at a segment boundary.
func commonPathSuffix(a, b string) string {
	n := 0
	for n < len(a) && n < len(b) && a[len(a)-1-n] == b[len(b)-1-n] {
		n++
	}
	suffix := a[len(a)-n:]
	if n == len(a) || n == len(b) {
		return suffix
	}
	if i := strings.IndexByte(suffix, '/'); i >= 0 {
		return suffix[i:]
	}
	return ""
}
