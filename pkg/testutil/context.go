package testutil

import (
	"net/http"

	"idforge/pkg/platform/middleware/metadata"
)

// WithClientIP adds a client IP to the request context, as the metadata
// middleware would after proxy header handling.
func WithClientIP(req *http.Request, ip string) *http.Request {
	ctx := metadata.WithClientMetadata(req.Context(), ip, req.UserAgent())
	return req.WithContext(ctx)
}
