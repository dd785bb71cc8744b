package testutil

import (
	"net/http"

	"cmpbridge/pkg/platform/middleware/metadata"
)

// WithClientIP attaches a client IP the way the metadata middleware would,
// for handlers exercised without the full router.
func WithClientIP(req *http.Request, ip string) *http.Request {
	return req.WithContext(metadata.WithClientIP(req.Context(), ip))
}
