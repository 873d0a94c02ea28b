package httpserver

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	handler := http.NewServeMux()
	srv := New(":9090", handler)

	require.Equal(t, ":9090", srv.Addr)
	require.Equal(t, http.Handler(handler), srv.Handler)
	require.Equal(t, 5*time.Second, srv.ReadHeaderTimeout)
	require.Equal(t, 10*time.Second, srv.ReadTimeout)
	require.Equal(t, 90*time.Second, srv.IdleTimeout)

	// The router cancels requests at 30s; the connection write deadline must
	// not fire before that budget is spent.
	require.Greater(t, srv.WriteTimeout, 30*time.Second)
}
