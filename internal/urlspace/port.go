package urlspace

import (
	"strconv"
	"strings"
)

// Default ports for the http family of schemes.
const (
	DefaultHTTPPort  = 80
	DefaultHTTPSPort = 443
)

// Port is an optional TCP port.
type Port struct {
	N     int
	Valid bool
}

// ParsePort converts s to a Port; anything that is not a decimal number in
// 1..65535 is absent.
func ParsePort(s string) Port {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > 65535 {
		return Port{}
	}
	return Port{N: n, Valid: true}
}

// DefaultPort returns the implicit port of an http or https scheme. Other
// schemes have no default.
func DefaultPort(protocol string) Port {
	if !strings.HasPrefix(protocol, "http") {
		return Port{}
	}
	if len(protocol) > 4 && protocol[4] == 's' {
		return Port{N: DefaultHTTPSPort, Valid: true}
	}
	return Port{N: DefaultHTTPPort, Valid: true}
}

// EffectivePort is the explicit port of u, or the default of its scheme.
func EffectivePort(u URL) Port {
	if p := ParsePort(u.Port); p.Valid {
		return p
	}
	return DefaultPort(u.Protocol)
}

// IsSecure reports whether protocol is the secure variant of its family,
// i.e. it ends in "s".
func IsSecure(protocol string) bool {
	return strings.HasSuffix(protocol, "s")
}

// SecureSwitch reports whether a and b differ exactly by a trailing "s".
func SecureSwitch(a, b string) bool {
	return a != "" && b != "" && (a == b+"s" || b == a+"s")
}
