package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// tokenRefreshSkew renews the bearer token this long before it expires.
const tokenRefreshSkew = 60 * time.Second

// tokenSource caches the client-credentials bearer token until near expiry.
type tokenSource struct {
	tokenURL     string
	clientID     string
	clientSecret string
	http         *http.Client
	now          Clock

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token returns a valid bearer token, fetching a new one when the cached one
// is missing or inside the refresh window. Concurrent callers share one fetch.
func (s *tokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expiresAt.Add(-tokenRefreshSkew)) {
		return s.token, nil
	}

	tok, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}
	s.token = tok.AccessToken
	s.expiresAt = s.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return s.token, nil
}

// Invalidate drops the cached token after the API rejected it.
func (s *tokenSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiresAt = time.Time{}
}

func (s *tokenSource) fetch(ctx context.Context) (*tokenResponse, error) {
	if s.clientID == "" || s.clientSecret == "" {
		return nil, ErrNoCredential
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(s.clientID, s.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		// invalid_client comes back as 400 from the token endpoint.
		return nil, ErrUnauthorized
	}
	if err := statusError(resp); err != nil {
		return nil, err
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("parse token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token response without access_token")
	}
	return &tok, nil
}

// statusError maps a non-200 response to a sentinel.
func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 500:
		return ErrServer
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}
