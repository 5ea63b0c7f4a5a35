package urlspace

import "strings"

// SplitSession separates a session token from the last segment of pathname.
// The token is everything after the first ';' in that segment.
func SplitSession(pathname string) (path, session string, ok bool) {
	last := strings.LastIndexByte(pathname, '/') + 1
	i := strings.IndexByte(pathname[last:], ';')
	if i < 0 {
		return pathname, "", false
	}
	i += last
	return pathname[:i], pathname[i+1:], true
}

// StripSession returns pathname without its session token.
func StripSession(pathname string) string {
	path, _, _ := SplitSession(pathname)
	return path
}

// AddSession appends a session token to pathname. An empty token leaves the
// path unchanged.
func AddSession(pathname, session string) string {
	if session == "" {
		return pathname
	}
	return pathname + ";" + session
}
