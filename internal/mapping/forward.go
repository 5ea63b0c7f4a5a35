package mapping

import (
	"strings"

	"mount-proxy/internal/urlspace"
)

// Forward maps a URL in client space (below the mount) to the corresponding
// URL in backend space (below the target path). With the mount "/xyz" and the
// target "http://server:8080/target/path", "/xyz/a?b=c" becomes
// "/target/path/a?b=c".
//
// withAuthority adds the target's (or, without a target, the server's) host
// and port. The protocol is the target's own, or the request protocol when
// assumeExternalProtocol is set.
func (c *Context) Forward(u urlspace.Ref, withAuthority, assumeExternalProtocol bool) urlspace.Ref {
	in := u.URL()
	pathname := in.Pathname

	if c.Mount != "" && strings.HasPrefix(pathname, c.Mount) {
		pathname = pathname[len(c.Mount):]
	}
	if c.Target != nil && c.Target.Pathname != "" {
		if pathname != "" {
			pathname = c.Target.Pathname + "/" + pathname
		} else {
			pathname = c.Target.Pathname
		}
	}

	out := urlspace.URL{
		Pathname: urlspace.CollapseSlashes(pathname),
		Search:   in.Search,
		Hash:     in.Hash,
	}
	if withAuthority {
		if goal := c.prefix(); goal != nil {
			out.Hostname = goal.Hostname
			out.Port = goal.Port
			out.Protocol = goal.Protocol
			if assumeExternalProtocol && c.Protocol != "" {
				out.Protocol = c.Protocol
			}
		}
	}
	return u.With(out)
}
