package httpserver

import (
	"net/http"
	"time"
)

// New builds the HTTP server for the marketplace API. WriteTimeout sits
// above the router's 30s request timeout so handlers, not the server, cut
// off slow requests.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
