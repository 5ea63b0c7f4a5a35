package mapping

import (
	"strings"

	"mount-proxy/internal/urlspace"
)

// Scope is the result of a successful Internal check.
type Scope struct {
	// SecureSwitch is set when the URL is in scope but switches between a
	// protocol and its secure variant, e.g. http to https.
	SecureSwitch bool
}

// Internal reports whether u lies within the target (or, without a target,
// the server) of c. A switch between http and https is still internal and
// flagged in the returned Scope.
//
// Scope rules, checked against the target with its protocol replaced by the
// request protocol:
//   - protocols are equal or differ only by a trailing "s"
//   - hostnames are equal when both are given
//   - ports are equal after applying scheme defaults, unless the protocol
//     switches
//   - the path starts with the target path
func (c *Context) Internal(u urlspace.Ref) (Scope, bool) {
	if u.IsZero() {
		return Scope{}, false
	}
	p := c.prefix()
	if p == nil {
		return Scope{}, true
	}
	return internal(*p, c.Protocol, u.URL())
}

func internal(prefix urlspace.URL, protocol string, u urlspace.URL) (Scope, bool) {
	if protocol != "" {
		prefix.Protocol = protocol
	}

	var s Scope
	if prefix.Protocol != "" && u.Protocol != "" {
		s.SecureSwitch = urlspace.SecureSwitch(prefix.Protocol, u.Protocol)
		if !s.SecureSwitch && prefix.Protocol != u.Protocol {
			return Scope{}, false
		}
	}

	if prefix.Hostname != "" && u.Hostname != "" && prefix.Hostname != u.Hostname {
		return Scope{}, false
	}

	if prefix.Port != "" || u.Port != "" {
		if !s.SecureSwitch && urlspace.EffectivePort(prefix) != urlspace.EffectivePort(u) {
			return Scope{}, false
		}
	}

	// "http://b" addresses the root path of b.
	path := u.Pathname
	if path == "" && u.Hostname != "" {
		path = "/"
	}
	if prefix.Pathname != "" && !strings.HasPrefix(path, prefix.Pathname) {
		return Scope{}, false
	}
	return s, true
}
