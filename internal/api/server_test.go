package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armyletters/letters-server/internal/domain"
	"github.com/armyletters/letters-server/internal/media/card"
	"github.com/armyletters/letters-server/internal/ratelimit"
	"github.com/armyletters/letters-server/internal/search"
	"github.com/armyletters/letters-server/internal/service"
	"github.com/armyletters/letters-server/internal/share"
	"github.com/armyletters/letters-server/internal/sse"
	"github.com/armyletters/letters-server/internal/store"
	"github.com/armyletters/letters-server/internal/store/storetest"
)

type fakeSongs struct {
	tracks []domain.Track
	err    error
}

func (f *fakeSongs) Search(_ context.Context, _ string) ([]domain.Track, error) {
	return f.tracks, f.err
}

type testServer struct {
	*Server
	api    humatest.TestAPI
	store  *store.Store
	songs  *fakeSongs
	search *service.SearchService
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	logger := testLogger()

	st, err := store.New("", logger, nil, store.Options{Clock: storetest.Clock()})
	require.NoError(t, err)

	cards, err := card.NewCache(t.TempDir())
	require.NoError(t, err)

	index, err := search.NewSearchIndex(search.Options{DataPath: t.TempDir()})
	require.NoError(t, err)

	songs := &fakeSongs{}
	searchService := service.NewSearchService(index, st, logger)
	services := &Services{
		Letters: service.NewLetterService(st, nil, cards, share.NewBuilder("https://letters.test", ""), nil, logger),
		Songs:   service.NewSongService(songs, logger),
		Search:  searchService,
	}

	sseManager := sse.NewManager(logger)
	ctx, cancel := context.WithCancel(context.Background())
	sseManager.Run(ctx)

	s := NewServer(st, services, sseManager, opts, logger)

	t.Cleanup(func() {
		s.Close()
		_ = sseManager.Shutdown(context.Background())
		cancel()
		_ = index.Close()
		_ = st.Close()
	})

	return &testServer{
		Server: s,
		api:    humatest.Wrap(t, s.API()),
		store:  st,
		songs:  songs,
		search: searchService,
	}
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &v), resp.Body.String())
	return v
}

func (ts *testServer) createLetter(t *testing.T, name string, member domain.Member) *domain.Letter {
	t.Helper()
	l, err := ts.store.CreateLetter(context.Background(), storetest.Draft(name, member))
	require.NoError(t, err)
	return l
}

func TestHealth(t *testing.T) {
	ts := setupTestServer(t, Options{})

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	body := decode[HealthResponse](t, resp)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "healthy", body.Components["store"].Status)
	assert.Equal(t, "no connected clients", body.Components["sse"].Message)
}

func TestListMembers(t *testing.T) {
	ts := setupTestServer(t, Options{})

	resp := ts.api.Get("/api/v1/members")
	require.Equal(t, http.StatusOK, resp.Code)

	body := decode[MembersResponse](t, resp)
	assert.Equal(t, domain.Members, body.Members)
	assert.Equal(t, domain.SortOrders, body.Sorts)
	require.Len(t, body.Colors, len(domain.ColorClasses))
	assert.Equal(t, card.Hex("card-1"), body.Colors[0].Hex)
}

func TestCreateLetter(t *testing.T) {
	ts := setupTestServer(t, Options{})

	resp := ts.api.Post("/api/v1/letters", map[string]any{
		"name":    "Anna",
		"member":  "Jimin",
		"message": "Thank you for the music",
		"country": "Peru",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	letter := decode[domain.Letter](t, resp)
	assert.NotEmpty(t, letter.ID)
	assert.Equal(t, domain.MemberJimin, letter.Member)
	assert.Equal(t, 0, letter.Likes)
	assert.Empty(t, letter.LikedBy)
	assert.True(t, domain.ValidColorClass(letter.ColorClass))

	stored, err := ts.store.GetLetter(context.Background(), letter.ID)
	require.NoError(t, err)
	assert.Equal(t, "Thank you for the music", stored.Message)
}

func TestCreateLetter_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		body     map[string]any
		status   int
		detailOn string
	}{
		{
			name:     "profane message",
			body:     map[string]any{"name": "Anna", "member": "V", "message": "you pig"},
			status:   http.StatusBadRequest,
			detailOn: "blocked_words",
		},
		{
			name:     "message too long",
			body:     map[string]any{"name": "Anna", "member": "V", "message": strings.Repeat("a", 1001)},
			status:   http.StatusBadRequest,
			detailOn: "message",
		},
		{
			name:     "unknown member",
			body:     map[string]any{"name": "Anna", "member": "Taehyung", "message": "hi"},
			status:   http.StatusBadRequest,
			detailOn: "member",
		},
		{
			name:     "missing message",
			body:     map[string]any{"name": "Anna", "member": "V"},
			status:   http.StatusBadRequest,
			detailOn: "message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestServer(t, Options{})

			resp := ts.api.Post("/api/v1/letters", tt.body)
			require.Equal(t, tt.status, resp.Code, resp.Body.String())

			body := decode[errorBody](t, resp)
			assert.Equal(t, "VALIDATION", body.Code)
			if tt.detailOn != "" {
				assert.Contains(t, body.Details, tt.detailOn)
			}

			n, err := ts.store.CountLetters(context.Background())
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestCreateLetter_RateLimited(t *testing.T) {
	ts := setupTestServer(t, Options{WriteLimiter: ratelimit.New(0.001, 1)})
	body := map[string]any{"name": "Anna", "member": "RM", "message": "hello"}

	resp := ts.api.Post("/api/v1/letters", body)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = ts.api.Post("/api/v1/letters", body)
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "RATE_LIMITED", decode[errorBody](t, resp).Code)

	// Reads are not limited.
	resp = ts.api.Get("/api/v1/letters")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestListLetters(t *testing.T) {
	ts := setupTestServer(t, Options{})
	first := ts.createLetter(t, "Anna", domain.MemberRM)
	ts.createLetter(t, "Bora", domain.MemberV)
	third := ts.createLetter(t, "Chae", domain.MemberRM)

	resp := ts.api.Get("/api/v1/letters?member=rm&sort=newest&limit=1")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	page := decode[domain.Page](t, resp)
	require.Len(t, page.Items, 1)
	assert.Equal(t, third.ID, page.Items[0].ID)
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.NextCursor)

	resp = ts.api.Get("/api/v1/letters?member=rm&sort=newest&limit=1&cursor=" + page.NextCursor)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	page = decode[domain.Page](t, resp)
	require.Len(t, page.Items, 1)
	assert.Equal(t, first.ID, page.Items[0].ID)
	assert.False(t, page.HasMore)
}

func TestListLetters_InvalidQuery(t *testing.T) {
	ts := setupTestServer(t, Options{})
	ts.createLetter(t, "Anna", domain.MemberRM)
	ts.createLetter(t, "Bora", domain.MemberRM)

	resp := ts.api.Get("/api/v1/letters?member=nobody")
	require.Equal(t, http.StatusBadRequest, resp.Code)
	body := decode[errorBody](t, resp)
	assert.Equal(t, "VALIDATION", body.Code)
	assert.Contains(t, body.Details, "member")

	resp = ts.api.Get("/api/v1/letters?sort=random")
	require.Equal(t, http.StatusBadRequest, resp.Code)

	// A cursor minted under another sort is rejected.
	resp = ts.api.Get("/api/v1/letters?limit=1")
	page := decode[domain.Page](t, resp)
	require.NotEmpty(t, page.NextCursor)
	resp = ts.api.Get("/api/v1/letters?sort=oldest&limit=1&cursor=" + page.NextCursor)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetLetter(t *testing.T) {
	ts := setupTestServer(t, Options{})
	l := ts.createLetter(t, "Anna", domain.MemberSuga)

	resp := ts.api.Get("/api/v1/letters/" + l.ID)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Anna", decode[domain.Letter](t, resp).Name)

	resp = ts.api.Get("/api/v1/letters/ltr-missing")
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "NOT_FOUND", decode[errorBody](t, resp).Code)
}

func TestToggleLike(t *testing.T) {
	ts := setupTestServer(t, Options{})
	l := ts.createLetter(t, "Anna", domain.MemberJin)

	resp := ts.api.Post("/api/v1/letters/"+l.ID+"/like", map[string]any{"identity_id": "u1", "liked": false})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	liked := decode[domain.Letter](t, resp)
	assert.Equal(t, 1, liked.Likes)
	assert.Equal(t, []string{"u1"}, liked.LikedBy)

	// A repeated toggle from a stale view does not double count.
	resp = ts.api.Post("/api/v1/letters/"+l.ID+"/like", map[string]any{"identity_id": "u1", "liked": false})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1, decode[domain.Letter](t, resp).Likes)

	resp = ts.api.Post("/api/v1/letters/"+l.ID+"/like", map[string]any{"identity_id": "u1", "liked": true})
	require.Equal(t, http.StatusOK, resp.Code)
	unliked := decode[domain.Letter](t, resp)
	assert.Equal(t, 0, unliked.Likes)
	assert.Empty(t, unliked.LikedBy)
}

func TestToggleLike_Errors(t *testing.T) {
	ts := setupTestServer(t, Options{})
	l := ts.createLetter(t, "Anna", domain.MemberJin)

	resp := ts.api.Post("/api/v1/letters/"+l.ID+"/like", map[string]any{"identity_id": "", "liked": false})
	require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
	body := decode[errorBody](t, resp)
	assert.Equal(t, "VALIDATION", body.Code)
	assert.Contains(t, body.Details, "identity_id")

	resp = ts.api.Post("/api/v1/letters/ltr-missing/like", map[string]any{"identity_id": "u1", "liked": false})
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestShareLetter(t *testing.T) {
	ts := setupTestServer(t, Options{})
	l := ts.createLetter(t, "Anna", domain.MemberJHope)

	resp := ts.api.Get("/api/v1/letters/" + l.ID + "/share")
	require.Equal(t, http.StatusOK, resp.Code)

	body := decode[service.ShareResult](t, resp)
	assert.Equal(t, "https://letters.test/letter/"+l.ID, body.Links.URL)
	assert.True(t, strings.HasPrefix(body.Links.WhatsApp, "https://wa.me/?text="))
	assert.Equal(t, "Letter to J-Hope - "+share.DefaultSiteName, body.Meta.Title)
}

func TestLetterCard(t *testing.T) {
	ts := setupTestServer(t, Options{})
	l := ts.createLetter(t, "Anna", domain.MemberJungkook)

	resp := ts.api.Get("/api/v1/letters/" + l.ID + "/card.png")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "image/png", resp.Header().Get("Content-Type"))
	assert.Equal(t, CacheOneWeek, resp.Header().Get("Cache-Control"))
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "letter-to-jungkook.png")
	assert.True(t, strings.HasPrefix(resp.Body.String(), "\x89PNG"))

	etag := resp.Header().Get("ETag")
	require.NotEmpty(t, etag)

	resp = ts.api.Get("/api/v1/letters/"+l.ID+"/card.png", "If-None-Match: "+etag)
	assert.Equal(t, http.StatusNotModified, resp.Code)
	assert.Zero(t, resp.Body.Len())
}

func TestLetterPage(t *testing.T) {
	ts := setupTestServer(t, Options{})
	l, err := ts.store.CreateLetter(context.Background(), domain.Draft{
		Name:    "Anna",
		Member:  domain.MemberV,
		Message: "<b>Purple</b> you",
	})
	require.NoError(t, err)

	resp := ts.api.Get("/letter/" + l.ID)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Header().Get("Content-Type"), "text/html")

	html := resp.Body.String()
	assert.Contains(t, html, `<meta property="og:title" content="Letter to V - Love for BTS">`)
	assert.Contains(t, html, "https://letters.test/api/v1/letters/"+l.ID+"/card.png")
	assert.Contains(t, html, "&lt;b&gt;Purple&lt;/b&gt; you")
	assert.NotContains(t, html, "<b>Purple</b>")

	resp = ts.api.Get("/letter/ltr-missing")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Contains(t, resp.Body.String(), "Letter Not Found")
}

func TestSearchLetters(t *testing.T) {
	ts := setupTestServer(t, Options{})
	anna := ts.createLetter(t, "Anna", domain.MemberRM)
	ts.createLetter(t, "Bora", domain.MemberV)
	_, err := ts.search.Reindex(context.Background())
	require.NoError(t, err)

	resp := ts.api.Get("/api/v1/letters/search?q=anna")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	body := decode[service.SearchResult](t, resp)
	require.Len(t, body.Letters, 1)
	assert.Equal(t, anna.ID, body.Letters[0].ID)

	resp = ts.api.Get("/api/v1/letters/search?member=v")
	require.Equal(t, http.StatusOK, resp.Code)
	body = decode[service.SearchResult](t, resp)
	require.Len(t, body.Letters, 1)
	assert.Equal(t, "Bora", body.Letters[0].Name)

	resp = ts.api.Get("/api/v1/letters/search?member=nobody")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSearchSongs(t *testing.T) {
	ts := setupTestServer(t, Options{})
	ts.songs.tracks = []domain.Track{{
		ID:      "trk-1",
		Name:    "Dynamite",
		Artists: []domain.Artist{{Name: "BTS"}},
		Album:   domain.Album{Name: "BE", Images: []domain.AlbumImage{{URL: "https://img.test/be.jpg"}}},
	}}

	resp := ts.api.Get("/api/v1/songs/search?q=dyna")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	body := decode[SearchSongsResponse](t, resp)
	require.Len(t, body.Tracks, 1)
	assert.Equal(t, "Dynamite", body.Tracks[0].Name)

	resp = ts.api.Get("/api/v1/songs/search?q=%20%20")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decode[SearchSongsResponse](t, resp).Tracks)
}

func TestSearchSongs_LookupFailure(t *testing.T) {
	ts := setupTestServer(t, Options{})
	ts.songs.err = errors.New("catalog down")

	resp := ts.api.Get("/api/v1/songs/search?q=dynamite")
	require.Equal(t, http.StatusBadGateway, resp.Code)
	body := decode[errorBody](t, resp)
	assert.Equal(t, "LOOKUP_FAILED", body.Code)
	assert.NotContains(t, body.Message, "catalog down")
}

func TestCheckProfanity(t *testing.T) {
	ts := setupTestServer(t, Options{})

	resp := ts.api.Post("/api/v1/profanity/check", map[string]any{"text": "You PIG"})
	require.Equal(t, http.StatusOK, resp.Code)
	result := decode[struct {
		HasMatch bool     `json:"has_match"`
		Matches  []string `json:"matches"`
	}](t, resp)
	assert.True(t, result.HasMatch)
	assert.Equal(t, []string{"pig"}, result.Matches)

	resp = ts.api.Post("/api/v1/profanity/check", map[string]any{"text": "pigment"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"has_match":false`)
}

func TestLetterStream(t *testing.T) {
	ts := setupTestServer(t, Options{})
	ts.createLetter(t, "Anna", domain.MemberRM)
	ts.createLetter(t, "Bora", domain.MemberV)

	server := httptest.NewServer(ts.Server)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/v1/letters/stream?member=RM", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	var snapshot struct {
		Data sse.LettersSnapshotEventData `json:"data"`
	}
	event := ""
	for snapshot.Data.Member == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			event = name
			continue
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok && event == string(sse.EventLettersSnapshot) {
			require.NoError(t, json.Unmarshal([]byte(data), &snapshot))
		}
	}

	assert.Equal(t, "RM", snapshot.Data.Member)
	require.Len(t, snapshot.Data.Letters, 1)
	assert.Equal(t, "Anna", snapshot.Data.Letters[0].Name)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.2:5000", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.2:5000", "198.51.100.4"},
		{"remote with port", nil, "192.0.2.1:1234", "192.0.2.1"},
		{"ipv6 remote", nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"remote without port", nil, "192.0.2.9", "192.0.2.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := func(k string) string { return tt.headers[k] }
			assert.Equal(t, tt.want, clientIP(header, tt.remote))
		})
	}
}
