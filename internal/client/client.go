// Package client is the letters API over HTTP. It implements the same
// adapter surface as the in-process stores, so a feed can run against a
// remote server unchanged.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/armyletters/letters-server/internal/domain"
	domainerrors "github.com/armyletters/letters-server/internal/errors"
	"github.com/armyletters/letters-server/internal/profanity"
	"github.com/armyletters/letters-server/internal/share"
)

const (
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 64 << 10
)

// Client talks to a letters API server.
type Client struct {
	baseURL string
	http    *http.Client
	stream  *http.Client
	logger  *slog.Logger
	backoff Backoff
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the client used for regular requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithStreamClient replaces the client used for live streams. It must not
// carry a request timeout.
func WithStreamClient(c *http.Client) Option {
	return func(cl *Client) { cl.stream = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithBackoff sets the reconnect policy of live streams.
func WithBackoff(b Backoff) Option {
	return func(cl *Client) { cl.backoff = b }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		stream:  &http.Client{},
		logger:  slog.New(slog.DiscardHandler),
		backoff: DefaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ShareResult is the share payload of a letter.
type ShareResult struct {
	Links share.Links `json:"links"`
	Meta  share.Meta  `json:"meta"`
}

// SearchResult is a ranked list of letters.
type SearchResult struct {
	Query   string           `json:"query"`
	Total   uint64           `json:"total"`
	Letters []*domain.Letter `json:"letters"`
}

type likeRequest struct {
	IdentityID string `json:"identity_id"`
	Liked      bool   `json:"liked"`
}

type checkRequest struct {
	Text string `json:"text"`
}

type songsResponse struct {
	Tracks []domain.Track `json:"tracks"`
}

// Create submits a draft and returns the new letter's id.
func (c *Client) Create(ctx context.Context, d domain.Draft) (string, error) {
	letter, err := c.CreateLetter(ctx, d)
	if err != nil {
		return "", err
	}
	return letter.ID, nil
}

// CreateLetter submits a draft and returns the stored letter.
func (c *Client) CreateLetter(ctx context.Context, d domain.Draft) (*domain.Letter, error) {
	var letter domain.Letter
	if err := c.do(ctx, http.MethodPost, "/api/v1/letters", nil, d, &letter, domainerrors.CodeWriteFailed); err != nil {
		return nil, err
	}
	return &letter, nil
}

// GetLetter fetches one letter.
func (c *Client) GetLetter(ctx context.Context, letterID string) (*domain.Letter, error) {
	var letter domain.Letter
	if err := c.do(ctx, http.MethodGet, "/api/v1/letters/"+url.PathEscape(letterID), nil, nil, &letter, domainerrors.CodeReadFailed); err != nil {
		return nil, err
	}
	return &letter, nil
}

// QueryPage fetches one page of the feed for q.
func (c *Client) QueryPage(ctx context.Context, q domain.Query, cursor string, limit int) (*domain.Page, error) {
	params := queryParams(q)
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var page domain.Page
	if err := c.do(ctx, http.MethodGet, "/api/v1/letters", params, nil, &page, domainerrors.CodeReadFailed); err != nil {
		return nil, err
	}
	if page.Items == nil {
		page.Items = []*domain.Letter{}
	}
	return &page, nil
}

// ToggleLike flips identityID's like on a letter.
func (c *Client) ToggleLike(ctx context.Context, letterID, identityID string, currentlyLiked bool) (*domain.Letter, error) {
	var letter domain.Letter
	body := likeRequest{IdentityID: identityID, Liked: currentlyLiked}
	path := "/api/v1/letters/" + url.PathEscape(letterID) + "/like"
	if err := c.do(ctx, http.MethodPost, path, nil, body, &letter, domainerrors.CodeWriteFailed); err != nil {
		return nil, err
	}
	return &letter, nil
}

// SearchSongs proxies the song catalog search.
func (c *Client) SearchSongs(ctx context.Context, query string) ([]domain.Track, error) {
	var resp songsResponse
	params := url.Values{"q": {query}}
	if err := c.do(ctx, http.MethodGet, "/api/v1/songs/search", params, nil, &resp, domainerrors.CodeLookupFailed); err != nil {
		return nil, err
	}
	if resp.Tracks == nil {
		resp.Tracks = []domain.Track{}
	}
	return resp.Tracks, nil
}

// CheckText asks the server which blocked words a text contains.
func (c *Client) CheckText(ctx context.Context, text string) (profanity.Result, error) {
	var res profanity.Result
	err := c.do(ctx, http.MethodPost, "/api/v1/profanity/check", nil, checkRequest{Text: text}, &res, domainerrors.CodeReadFailed)
	return res, err
}

// Share fetches the share links of a letter.
func (c *Client) Share(ctx context.Context, letterID string) (*ShareResult, error) {
	var res ShareResult
	path := "/api/v1/letters/" + url.PathEscape(letterID) + "/share"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &res, domainerrors.CodeReadFailed); err != nil {
		return nil, err
	}
	return &res, nil
}

// SearchLetters runs a server-side full-text search.
func (c *Client) SearchLetters(ctx context.Context, query string, member domain.Member, limit int) (*SearchResult, error) {
	params := url.Values{"q": {query}}
	if member != "" {
		params.Set("member", string(member))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var res SearchResult
	if err := c.do(ctx, http.MethodGet, "/api/v1/letters/search", params, nil, &res, domainerrors.CodeReadFailed); err != nil {
		return nil, err
	}
	return &res, nil
}

func queryParams(q domain.Query) url.Values {
	params := url.Values{}
	if !q.Filter.IsAll() {
		params.Set("member", string(q.Filter.Member))
	}
	if q.Sort != "" {
		params.Set("sort", string(q.Sort))
	}
	return params
}

// do sends one JSON request. Failures become domain errors: the server's
// code when it sent one, otherwise fallback.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any, fallback domainerrors.Code) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return domainerrors.Wrap(err, fallback, "encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return domainerrors.Wrap(err, fallback, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("api request", "method", method, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return domainerrors.Wrap(err, fallback, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp, fallback)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domainerrors.Wrap(err, fallback, "decode response")
	}
	return nil
}

// apiError is the error body the server sends.
type apiError struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

func decodeError(resp *http.Response, fallback domainerrors.Code) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	statusErr := fmt.Errorf("status %d", resp.StatusCode)

	var body apiError
	if err := json.Unmarshal(data, &body); err != nil || body.Code == "" {
		code := domainerrors.CodeForStatus(resp.StatusCode, fallback)
		return domainerrors.Wrap(statusErr, code, http.StatusText(resp.StatusCode))
	}

	derr := domainerrors.Wrap(statusErr, domainerrors.Code(body.Code), body.Message)
	if len(body.Details) > 0 {
		var details any
		if json.Unmarshal(body.Details, &details) == nil {
			derr.Details = details
		}
	}
	return derr
}

// IsRetryable reports whether err is worth retrying later.
func IsRetryable(err error) bool {
	var derr *domainerrors.Error
	if !errors.As(err, &derr) {
		return false
	}
	return derr.Retryable()
}
