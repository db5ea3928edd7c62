package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armyletters/letters-server/internal/api"
	"github.com/armyletters/letters-server/internal/domain"
	domainerrors "github.com/armyletters/letters-server/internal/errors"
	"github.com/armyletters/letters-server/internal/ratelimit"
	"github.com/armyletters/letters-server/internal/service"
	"github.com/armyletters/letters-server/internal/share"
	"github.com/armyletters/letters-server/internal/sse"
	"github.com/armyletters/letters-server/internal/store"
	"github.com/armyletters/letters-server/internal/store/storetest"
)

type stubSongs struct{}

func (stubSongs) Search(_ context.Context, q string) ([]domain.Track, error) {
	return []domain.Track{{ID: "t1", Name: q, Artists: []domain.Artist{{Name: "BTS"}}}}, nil
}

// newServer runs the real API over an in-memory store.
func newServer(t *testing.T, clock func() time.Time) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	st, err := store.New("", logger, nil, store.Options{Clock: clock})
	require.NoError(t, err)

	services := &api.Services{
		Letters: service.NewLetterService(st, nil, nil, share.NewBuilder("https://letters.test", ""), nil, logger),
		Songs:   service.NewSongService(stubSongs{}, logger),
	}

	sseManager := sse.NewManager(logger)
	ctx, cancel := context.WithCancel(context.Background())
	sseManager.Run(ctx)

	server := api.NewServer(st, services, sseManager, api.Options{
		WriteLimiter: ratelimit.New(1000, 1000),
		SongLimiter:  ratelimit.New(1000, 1000),
	}, logger)
	srv := httptest.NewServer(server)

	t.Cleanup(func() {
		_ = sseManager.Shutdown(context.Background())
		cancel()
		srv.Close()
		server.Close()
		_ = st.Close()
	})
	return srv
}

func TestClient_Backend(t *testing.T) {
	storetest.Run(t, func(t *testing.T, clock func() time.Time) storetest.Backend {
		srv := newServer(t, clock)
		return New(srv.URL)
	})
}

func TestClient_SearchSongs(t *testing.T) {
	srv := newServer(t, storetest.Clock())
	c := New(srv.URL)

	tracks, err := c.SearchSongs(context.Background(), "Butter")
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "Butter", tracks[0].Name)
	assert.Equal(t, []string{"BTS"}, tracks[0].ArtistNames())
}

func TestClient_CheckText(t *testing.T) {
	srv := newServer(t, storetest.Clock())
	c := New(srv.URL)

	res, err := c.CheckText(context.Background(), "you are a pig")
	require.NoError(t, err)
	assert.True(t, res.HasMatch)
	assert.Contains(t, res.Matches, "pig")
}

func TestClient_Share(t *testing.T) {
	srv := newServer(t, storetest.Clock())
	c := New(srv.URL)
	ctx := context.Background()

	letterID, err := c.Create(ctx, storetest.Draft("Ann", domain.MemberJin))
	require.NoError(t, err)

	res, err := c.Share(ctx, letterID)
	require.NoError(t, err)
	assert.Equal(t, "https://letters.test/letter/"+letterID, res.Links.URL)
}

func TestClient_CreateValidationDetails(t *testing.T) {
	srv := newServer(t, storetest.Clock())
	c := New(srv.URL)

	d := storetest.Draft("Ann", domain.MemberJin)
	d.Message = "you are a pig"
	_, err := c.CreateLetter(context.Background(), d)
	require.ErrorIs(t, err, domainerrors.ErrValidation)

	var derr *domainerrors.Error
	require.ErrorAs(t, err, &derr)
	details, ok := derr.Details.(map[string]any)
	require.True(t, ok, "details: %#v", derr.Details)
	assert.Contains(t, details, "blocked_words")
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		call   func(c *Client) error
		want   error
	}{
		{
			name:   "plain 503 on read",
			status: http.StatusServiceUnavailable,
			body:   "down",
			call: func(c *Client) error {
				_, err := c.QueryPage(context.Background(), domain.Query{}, "", 0)
				return err
			},
			want: domainerrors.ErrRead,
		},
		{
			name:   "plain 500 on write",
			status: http.StatusInternalServerError,
			call: func(c *Client) error {
				_, err := c.ToggleLike(context.Background(), "ltr-1", "u1", false)
				return err
			},
			want: domainerrors.ErrWrite,
		},
		{
			name:   "plain 404",
			status: http.StatusNotFound,
			call: func(c *Client) error {
				_, err := c.GetLetter(context.Background(), "ltr-1")
				return err
			},
			want: domainerrors.ErrNotFound,
		},
		{
			name:   "plain 429",
			status: http.StatusTooManyRequests,
			call: func(c *Client) error {
				_, err := c.Create(context.Background(), storetest.Draft("A", domain.MemberV))
				return err
			},
			want: domainerrors.ErrRateLimited,
		},
		{
			name:   "coded body wins over status",
			status: http.StatusBadGateway,
			body:   `{"code":"LOOKUP_FAILED","message":"song lookup failed"}`,
			call: func(c *Client) error {
				_, err := c.SearchSongs(context.Background(), "x")
				return err
			},
			want: domainerrors.ErrLookup,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := tt.call(New(srv.URL))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url)
	_, err := c.QueryPage(context.Background(), domain.Query{}, "", 0)
	assert.ErrorIs(t, err, domainerrors.ErrRead)
	assert.True(t, IsRetryable(err))

	_, err = c.ToggleLike(context.Background(), "ltr-1", "u1", false)
	assert.ErrorIs(t, err, domainerrors.ErrWrite)
}

func TestClient_SubscribeRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Subscribe(context.Background(), domain.Query{}, func([]*domain.Letter) {})
	assert.ErrorIs(t, err, domainerrors.ErrRead)
}

func snapshotFrame(t *testing.T, letterIDs ...string) string {
	t.Helper()
	letters := make([]*domain.Letter, len(letterIDs))
	for i, letterID := range letterIDs {
		letters[i] = &domain.Letter{ID: letterID, Member: domain.MemberRM}
	}
	data, err := json.Marshal(sse.NewLettersSnapshotEvent(domain.Query{}, letters))
	require.NoError(t, err)
	return fmt.Sprintf(": comment\nevent: letters.snapshot\ndata: %s\n\n", data)
}

func TestClient_SubscribeReconnects(t *testing.T) {
	var connects atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := connects.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "event: heartbeat\ndata: {\"type\":\"heartbeat\"}\n\n")
		_, _ = fmt.Fprint(w, snapshotFrame(t, fmt.Sprintf("ltr-%d", n)))
		// Returning ends the stream and forces a reconnect.
	}))
	defer srv.Close()

	c := New(srv.URL, WithBackoff(Backoff{Initial: 10 * time.Millisecond, Max: 20 * time.Millisecond}))

	updates := make(chan []*domain.Letter, 16)
	unsubscribe, err := c.Subscribe(context.Background(), domain.Query{}, func(letters []*domain.Letter) {
		updates <- letters
	})
	require.NoError(t, err)

	for _, want := range []string{"ltr-1", "ltr-2"} {
		select {
		case got := <-updates:
			require.Len(t, got, 1)
			assert.Equal(t, want, got[0].ID)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	unsubscribe()
	unsubscribe()
}

func TestBackoff_Next(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: 3 * time.Second}
	assert.Equal(t, time.Second, b.next(0))
	assert.Equal(t, 2*time.Second, b.next(time.Second))
	assert.Equal(t, 3*time.Second, b.next(2*time.Second))
}
