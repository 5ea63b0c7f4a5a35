// Package rewrite applies a link mapping to HTTP response headers and HTML
// documents returned by a backend.
package rewrite

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// LinkFunc maps a single link. Returning the link unchanged leaves the
// markup byte-for-byte untouched.
type LinkFunc func(link string) string

// linkAttrs are the attributes whose value is a single URL.
var linkAttrs = map[string]bool{
	"href":       true,
	"src":        true,
	"action":     true,
	"formaction": true,
	"poster":     true,
	"cite":       true,
	"background": true,
}

// HTML copies the document from r to w, passing every link attribute and
// every meta refresh target through fn. It returns the number of links fn
// changed. Tags without changed links and all other tokens are copied
// verbatim.
func HTML(w io.Writer, r io.Reader, fn LinkFunc) (int, error) {
	z := html.NewTokenizer(r)
	changed := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return changed, nil
			}
			return changed, fmt.Errorf("tokenize html: %w", z.Err())

		case html.StartTagToken, html.SelfClosingTagToken:
			// Token() lower-cases the tag in place, so keep the raw bytes first.
			raw := append([]byte(nil), z.Raw()...)
			tok := z.Token()
			n := rewriteAttrs(&tok, fn)
			if n == 0 {
				if _, err := w.Write(raw); err != nil {
					return changed, err
				}
				continue
			}
			changed += n
			if _, err := io.WriteString(w, tok.String()); err != nil {
				return changed, err
			}

		default:
			if _, err := w.Write(z.Raw()); err != nil {
				return changed, err
			}
		}
	}
}

func rewriteAttrs(tok *html.Token, fn LinkFunc) int {
	n := 0
	refresh := tok.DataAtom == atom.Meta && isRefresh(tok.Attr)
	for i, a := range tok.Attr {
		if a.Namespace != "" {
			continue
		}
		var v string
		switch {
		case linkAttrs[a.Key]:
			v = fn(a.Val)
		case refresh && a.Key == "content":
			v = Refresh(a.Val, fn)
		default:
			continue
		}
		if v != a.Val {
			tok.Attr[i].Val = v
			n++
		}
	}
	return n
}

func isRefresh(attrs []html.Attribute) bool {
	for _, a := range attrs {
		if a.Key == "http-equiv" && strings.EqualFold(strings.TrimSpace(a.Val), "refresh") {
			return true
		}
	}
	return false
}
