package api

import (
	"net"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/armyletters/letters-server/internal/ratelimit"
)

// rateLimited returns an operation middleware that limits requests per client IP.
// Returns 429 Too Many Requests when the limit is exceeded.
func (s *Server) rateLimited(limiter *ratelimit.KeyedRateLimiter) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		key := clientIP(ctx.Header, ctx.RemoteAddr())

		if !limiter.Allow(key) {
			s.logger.Warn("rate limit exceeded",
				"ip", key,
				"path", ctx.URL().Path,
			)
			ctx.SetHeader("Retry-After", "1")
			_ = huma.WriteErr(s.api, ctx, http.StatusTooManyRequests, "Too many requests. Please try again later.")
			return
		}

		next(ctx)
	}
}

// clientIP extracts the client IP from the request headers.
// Checks X-Forwarded-For and X-Real-IP before falling back to the remote address.
func clientIP(header func(string) string, remoteAddr string) string {
	// X-Forwarded-For may contain multiple IPs, the first is the client.
	if xff := header("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := header("X-Real-IP"); xri != "" {
		return xri
	}

	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
