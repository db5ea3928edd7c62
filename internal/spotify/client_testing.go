package spotify

import (
	"log/slog"
	"net/http"
	"time"
)

// NewForTesting points a client at a test server that serves both the token
// endpoint (POST /token) and search (GET /search).
func NewForTesting(baseURL string, httpClient *http.Client, clock Clock, logger *slog.Logger) *Client {
	return New(Options{
		ClientID:     "test-id",
		ClientSecret: "test-secret",
		TokenURL:     baseURL + "/token",
		SearchURL:    baseURL + "/search",
		CacheTTL:     time.Minute,
		RPS:          1000,
		HTTPClient:   httpClient,
		Clock:        clock,
	}, logger)
}
