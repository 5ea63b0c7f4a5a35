package urlspace

import "strings"

// sessionPlaceholder stands in for the session token of the target path
// while segments are compared.
const sessionPlaceholder = ";SESSION"

// Relativize returns the shortest relative reference that leads from the
// absolute path base to path, for example "../e" from "/a/b/c/d" to
// "/a/b/e". A base ending in '/' is treated as a directory: the comparison
// point is the empty segment after the slash. The result never starts with
// '/'. A session token in the last segment of path is carried over as-is.
func Relativize(base, path string) string {
	path, session, hasSession := SplitSession(path)
	if hasSession {
		path += sessionPlaceholder
	}
	if resolved, err := Resolve(base, path); err == nil {
		path = resolved
	}

	base = strings.TrimPrefix(base, "/")
	path = strings.TrimPrefix(path, "/")

	// A blank last component keeps the segment after a trailing slash alive
	// through the split.
	if strings.HasSuffix(base, "/") {
		base += " "
	}
	folder := strings.HasSuffix(path, "/")
	if folder {
		path = path[:len(path)-1]
	}

	baseSegs := strings.Split(base, "/")
	pathSegs := strings.Split(path, "/")

	n, equal := 0, true
	for ; n < len(baseSegs) && n < len(pathSegs); n++ {
		if equal = baseSegs[n] == pathSegs[n]; !equal {
			break
		}
	}

	var b strings.Builder
	up := len(baseSegs)
	if !equal {
		up--
	}
	for m := n; m < up; m++ {
		if m != n {
			b.WriteByte('/')
		}
		b.WriteString("..")
	}

	if equal {
		n--
	}
	for m := n; m < len(pathSegs); m++ {
		if m != n || b.Len() > 0 {
			b.WriteByte('/')
		}
		b.WriteString(pathSegs[m])
	}
	if folder {
		b.WriteByte('/')
	}

	rel := b.String()
	if hasSession {
		rel = strings.Replace(rel, sessionPlaceholder, ";"+session, 1)
	}
	return rel
}
