package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"mount-proxy/internal/mapping"
)

// ForceHTTPS returns an Echo middleware that redirects requests arriving over
// a plain protocol to the https form of the same page. The protocol is taken
// from the IsSSL and X-Forwarded-Proto headers or the server identity, and
// the configured http port is moved to the https port. Requests for which
// skipper returns true pass through; skipper may be nil.
func ForceHTTPS(mapper *mapping.Mapper, server mapping.ServerConfig, skipper echomw.Skipper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}
			target, ok := mapper.Secure(mapping.FromHTTP(c.Request(), server))
			if !ok {
				return next(c)
			}
			code := http.StatusPermanentRedirect
			if m := c.Request().Method; m == http.MethodGet || m == http.MethodHead {
				code = http.StatusMovedPermanently
			}
			return c.Redirect(code, target)
		}
	}
}
