package web

import (
	"context"
	"net"
	"net/http"

	"github.com/dirlisting/importer/internal/core"
)

// withSubmitter records the client starting an import so the session's
// creation log line names it.
func withSubmitter(ctx context.Context, r *http.Request) context.Context {
	return core.WithSubmitter(ctx, core.Submitter{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
}

// clientIP returns the request's remote host without the port. RemoteAddr
// has already been rewritten by TrustedRealIP when behind a proxy.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
