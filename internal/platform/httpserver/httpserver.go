// Package httpserver builds the ledger API's HTTP server. Timeouts are sized
// for this service's traffic: lifecycle writes return quickly, but the admin
// chain and integrity-audit endpoints walk whole ledgers, so the write side
// must outlast the 30s per-request budget enforced by the router.
package httpserver

import (
	"net/http"
	"time"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 10 * time.Second
	writeTimeout      = 35 * time.Second
	idleTimeout       = 90 * time.Second
)

func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}
