// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest represents a client request to be forwarded to a mount's target.
type ProxyRequest struct {
	Ctx        context.Context
	Method     string
	Host       string // Host header as sent by the client
	RequestURI string // path and query as sent by the client, e.g. "/xyz/a?b=c"
	RemoteIP   string
	Header     http.Header
	Body       io.ReadCloser
}

// ProxyResponse represents the backend response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
