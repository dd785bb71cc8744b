package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server. Write timeout leaves room for the longest probe
// budget plus browser start-up.
func New(addr string, handler http.Handler, probeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      probeTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
