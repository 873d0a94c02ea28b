package middleware

import (
	"context"
	"net/http"

	"github.com/mssola/useragent"
)

type contextKeyDevice struct{}

// DeviceInfo summarizes the client user agent for the security audit trail.
// Registration and vote intake log it so operators can spot bulk submissions
// from a single automation stack.
type DeviceInfo struct {
	Browser string
	OS      string
	Mobile  bool
	Bot     bool
}

// Device parses the User-Agent header once and stashes the summary in context.
func Device(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := useragent.New(r.UserAgent())
		browser, _ := ua.Browser()
		info := DeviceInfo{
			Browser: browser,
			OS:      ua.OS(),
			Mobile:  ua.Mobile(),
			Bot:     ua.Bot(),
		}
		ctx := context.WithValue(r.Context(), contextKeyDevice{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetDevice retrieves the parsed device summary from the context.
func GetDevice(ctx context.Context) DeviceInfo {
	if info, ok := ctx.Value(contextKeyDevice{}).(DeviceInfo); ok {
		return info
	}
	return DeviceInfo{}
}

// WithDevice injects a device summary into a context. Useful for service unit
// tests that don't run the full HTTP middleware chain.
func WithDevice(ctx context.Context, info DeviceInfo) context.Context {
	return context.WithValue(ctx, contextKeyDevice{}, info)
}
