package urlspace

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrUnresolvable is returned by Resolve when a reference cannot be resolved
// against the given base. The reference is returned unchanged alongside it.
var ErrUnresolvable = errors.New("unresolvable reference")

// placeholderAuthority is lent to path-only bases so that resolution follows
// the same rules as for full URLs, and removed again afterwards.
const placeholderAuthority = "http://x:0"

var netLocPattern = regexp.MustCompile(`^[a-zA-Z]*:/`)

// Resolve resolves ref against base following RFC 1808 section 4, giving the
// same result whether base is a full URL, an absolute path or a relative
// path. Dot segments are removed, so resolving "." against "/a/b/c" yields
// "/a/b/" (with the trailing slash).
//
// With an empty ref, base itself is normalized as if it had no base.
func Resolve(base, ref string) (string, error) {
	if ref == "" {
		base, ref = "", base
	}
	hasNetLoc := netLocPattern.MatchString(base)

	switch {
	case base == "" && ref == "":
		return ref, fmt.Errorf("resolve: empty base and reference: %w", ErrUnresolvable)
	case !hasNetLoc && strings.HasPrefix(ref, "//"):
		return ref, fmt.Errorf("resolve %q against %q: network-path reference without base authority: %w",
			ref, base, ErrUnresolvable)
	}

	if hasNetLoc {
		resolved, err := resolveReference(base, ref)
		if err != nil {
			return ref, fmt.Errorf("resolve %q against %q: %w: %w", ref, base, ErrUnresolvable, err)
		}
		return resolved, nil
	}

	absolute := strings.HasPrefix(base, "/") || (base == "" && strings.HasPrefix(ref, "/"))
	prefix := placeholderAuthority
	if !absolute {
		prefix += "/"
	}
	resolved, err := resolveReference(prefix+base, ref)
	if err != nil {
		return ref, fmt.Errorf("resolve %q against %q: %w: %w", ref, base, ErrUnresolvable, err)
	}
	switch {
	case strings.HasPrefix(resolved, prefix):
		return resolved[len(prefix):], nil
	case resolved == placeholderAuthority:
		return "", nil
	}
	// ref carried its own scheme or authority.
	return resolved, nil
}

func resolveReference(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}
