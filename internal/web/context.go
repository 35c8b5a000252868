package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/equipment-analytics/internal/core"
	"github.com/go-chi/chi/v5"
)

// WithRequestMetadata adds the client IP to the context for ingest logging.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithIPAddress(ctx, clientIP(r))
}

// clientIP returns the host part of RemoteAddr, which TrustedRealIP may
// already have rewritten to a bare IP.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// requestUser returns the user attached by the auth middleware.
func requestUser(r *http.Request) (int64, bool) {
	return core.UserIDFromContext(r.Context())
}

// datasetParam parses the {datasetID} route parameter. A malformed ID is
// reported as not found, the same as an ID owned by someone else.
func datasetParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "datasetID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("dataset %q: %w", raw, core.ErrNotFound)
	}
	return id, nil
}
