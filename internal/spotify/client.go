// Package spotify searches the Spotify catalog for songs by the group and its
// members.
package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/armyletters/letters-server/internal/domain"
)

const (
	defaultTokenURL  = "https://accounts.spotify.com/api/token"
	defaultSearchURL = "https://api.spotify.com/v1/search"

	defaultTimeout  = 10 * time.Second
	defaultLimit    = 20
	defaultCacheTTL = 10 * time.Minute

	// Outbound budget: 5 requests per second, burst of 10.
	defaultRPS   = 5.0
	defaultBurst = 10
)

// Options configures a Client. Zero values select production defaults.
type Options struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	SearchURL    string
	CacheTTL     time.Duration
	Limit        int
	RPS          float64
	Roster       []string
	HTTPClient   *http.Client
	Clock        Clock
}

// Client is a rate-limited, caching catalog search client. Each Client owns
// its token and result caches.
type Client struct {
	http      *http.Client
	searchURL string
	limit     int
	limiter   *rate.Limiter
	tokens    *tokenSource
	cache     *ResultCache
	roster    *Roster
	logger    *slog.Logger
}

// New creates a Client.
func New(opts Options, logger *slog.Logger) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	tokenURL := opts.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	searchURL := opts.SearchURL
	if searchURL == "" {
		searchURL = defaultSearchURL
	}
	limit := opts.Limit
	if limit <= 0 || limit > 50 {
		limit = defaultLimit
	}
	ttl := opts.CacheTTL
	if ttl == 0 {
		ttl = defaultCacheTTL
	}
	rps := opts.RPS
	if rps <= 0 {
		rps = defaultRPS
	}
	roster := opts.Roster
	if len(roster) == 0 {
		roster = DefaultRoster
	}

	return &Client{
		http:      httpClient,
		searchURL: searchURL,
		limit:     limit,
		limiter:   rate.NewLimiter(rate.Limit(rps), defaultBurst),
		tokens: &tokenSource{
			tokenURL:     tokenURL,
			clientID:     opts.ClientID,
			clientSecret: opts.ClientSecret,
			http:         httpClient,
			now:          clock,
		},
		cache:  NewResultCache(ttl, 0, clock),
		roster: NewRoster(roster),
		logger: logger,
	}
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c.tokens.clientID != "" && c.tokens.clientSecret != ""
}

type searchResponse struct {
	Tracks struct {
		Items []domain.Track `json:"items"`
	} `json:"tracks"`
}

// Search returns roster tracks matching query. A blank query returns an empty
// list without touching the network. Failures match ErrLookup.
func (c *Client) Search(ctx context.Context, query string) ([]domain.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Track{}, nil
	}

	if cached, ok := c.cache.Get(query); ok {
		c.logger.Debug("spotify cache hit", "query", query, "count", len(cached))
		return cached, nil
	}

	tracks, err := c.search(ctx, query)
	var lookupErr *Error
	if errors.As(err, &lookupErr) && lookupErr.Op == "search" && errors.Is(err, ErrUnauthorized) {
		// The cached token may have been revoked early; retry once with a fresh one.
		c.tokens.Invalidate()
		tracks, err = c.search(ctx, query)
	}
	if err != nil {
		return nil, err
	}

	filtered := c.roster.Filter(tracks)
	c.cache.Put(query, filtered)

	c.logger.Debug("spotify search",
		"query", query,
		"results", len(tracks),
		"kept", len(filtered),
	)
	return filtered, nil
}

func (c *Client) search(ctx context.Context, query string) ([]domain.Track, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, wrapError("token", "", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, wrapError("search", query, fmt.Errorf("rate limit wait: %w", err))
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "track")
	params.Set("limit", strconv.Itoa(c.limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, wrapError("search", query, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, wrapError("search", query, fmt.Errorf("execute request: %w", err))
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return nil, wrapError("search", query, err)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, wrapError("search", query, fmt.Errorf("parse response: %w", err))
	}
	return body.Tracks.Items, nil
}
