package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armyletters/letters-server/internal/api"
	"github.com/armyletters/letters-server/internal/config"
	"github.com/armyletters/letters-server/internal/domain"
	"github.com/armyletters/letters-server/internal/identity"
	"github.com/armyletters/letters-server/internal/ratelimit"
	"github.com/armyletters/letters-server/internal/service"
	"github.com/armyletters/letters-server/internal/share"
	"github.com/armyletters/letters-server/internal/sse"
	"github.com/armyletters/letters-server/internal/store"
	"github.com/armyletters/letters-server/internal/store/storetest"
)

const fixtureYAML = `letters:
  - name: Ana
    member: jimin
    message: Thank you for Filter.
    country: Peru
    age: 48h
    likes: 3
  - name: Ben
    member: BTS
    message: Borahae
    age: 1h
    color_class: not-a-colour
    song: {id: t1, name: Spring Day, artist: BTS}
`

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("SPOTIFY_CLIENT_ID", "")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "")
	t.Setenv("DATA_PATH", "")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("STORE_PATH", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
}

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name    string
		member  string
		sort    string
		want    domain.Query
		wantErr bool
	}{
		{"defaults", "", "", domain.Query{Filter: domain.FilterAll, Sort: domain.SortNewest}, false},
		{"member any case", "jungkook", "oldest", domain.Query{Filter: domain.FilterFor(domain.MemberJungkook), Sort: domain.SortOldest}, false},
		{"all keyword", "all", "most-liked", domain.Query{Filter: domain.FilterAll, Sort: domain.SortMostLiked}, false},
		{"unknown member", "Taehyung", "", domain.Query{}, true},
		{"unknown sort", "", "random", domain.Query{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseQuery(tt.member, tt.sort)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFixture_Letters(t *testing.T) {
	path := writeFile(t, t.TempDir(), "letters.yaml", fixtureYAML)
	f, err := loadFixture(path)
	require.NoError(t, err)

	now := time.Date(2024, 6, 13, 12, 0, 0, 0, time.UTC)
	letters, err := f.letters(now)
	require.NoError(t, err)
	require.Len(t, letters, 2)

	ana := letters[0]
	assert.Equal(t, domain.MemberJimin, ana.Member)
	assert.Equal(t, now.Add(-48*time.Hour), ana.Timestamp)
	assert.Equal(t, 3, ana.Likes)
	assert.Len(t, ana.LikedBy, 3)
	assert.True(t, domain.ValidColorClass(ana.ColorClass))

	ben := letters[1]
	assert.True(t, domain.ValidColorClass(ben.ColorClass), "invalid colours are replaced")
	require.NotNil(t, ben.Track)
	assert.Equal(t, "Spring Day", ben.Track.Name)
	assert.Zero(t, ben.Likes)
	assert.NotEqual(t, ana.ID, ben.ID)
}

func TestFixture_RejectsInvalidLetters(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"unknown member", "letters:\n  - {name: Ana, member: Nobody, message: hi}\n", "member"},
		{"blocked word", "letters:\n  - {name: Ana, member: Jin, message: you pig}\n", "blocked words: pig"},
		{"negative likes", "letters:\n  - {name: Ana, member: Jin, message: hi, likes: -1}\n", "negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := loadFixture(writeFile(t, t.TempDir(), "f.yaml", tt.yaml))
			require.NoError(t, err)
			_, err = f.letters(time.Now())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMaintenanceCommands(t *testing.T) {
	for _, driver := range []string{config.DriverBadger, config.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			isolateEnv(t)
			dir := t.TempDir()
			fixture := writeFile(t, t.TempDir(), "letters.yaml", fixtureYAML)
			global := []string{"--data-path", dir, "--store-driver", driver}

			out, err := execute(t, append(global, "seed", fixture)...)
			require.NoError(t, err)
			assert.Contains(t, out, "Imported 2 letters")

			out, err = execute(t, append(global, "inspect", "--top", "1")...)
			require.NoError(t, err)
			assert.Contains(t, out, "Letters: 2  Likes: 3")
			assert.Regexp(t, `Jimin\s+1`, out)
			assert.Contains(t, out, "Most liked:")
			assert.Contains(t, out, "Ana, Peru")
			assert.NotContains(t, out, "Borahae")

			out, err = execute(t, append(global, "backfill")...)
			require.NoError(t, err)
			assert.Contains(t, out, "Scanned 2 letters, repaired 0")

			out, err = execute(t, append(global, "reindex")...)
			require.NoError(t, err)
			assert.Contains(t, out, "Indexed 2 letters")
		})
	}
}

func TestSeed_MissingFixture(t *testing.T) {
	isolateEnv(t)
	_, err := execute(t, "--data-path", t.TempDir(), "seed", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read fixture")
}

// newAPI runs the HTTP API over an in-memory store.
func newAPI(t *testing.T) (*httptest.Server, store.LetterStore) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	st, err := store.New("", logger, nil, store.Options{Clock: storetest.Clock()})
	require.NoError(t, err)

	services := &api.Services{
		Letters: service.NewLetterService(st, nil, nil, share.NewBuilder("https://letters.test", ""), nil, logger),
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
	return srv, st
}

func TestRemoteCommands(t *testing.T) {
	isolateEnv(t)
	srv, st := newAPI(t)
	identityFile := filepath.Join(t.TempDir(), "identity.json")
	global := []string{"--server", srv.URL, "--identity-file", identityFile}
	ctx := context.Background()

	out, err := execute(t, append(global, "send", "--name", "Anna", "--member", "jin", "-m", "Thank you", "--country", "Chile")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Letter sent: ltr-")
	assert.Contains(t, out, "Share: https://letters.test/")

	page, err := st.QueryPage(ctx, domain.Query{Sort: domain.SortNewest}, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	letterID := page.Items[0].ID
	assert.Equal(t, domain.MemberJin, page.Items[0].Member)

	out, err = execute(t, append(global, "like", letterID)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Liked "+letterID+" (1 likes)")

	kv := identity.NewFileKV(identityFile)
	liked := identity.LoadLikedSet(kv, slog.New(slog.DiscardHandler))
	assert.True(t, liked.Has(letterID), "like is remembered locally")

	out, err = execute(t, append(global, "list", "--member", "Jin")...)
	require.NoError(t, err)
	assert.Contains(t, out, letterID)
	assert.Contains(t, out, "Anna, Chile")

	out, err = execute(t, append(global, "like", "--unlike", letterID)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Unliked "+letterID+" (0 likes)")
	assert.False(t, identity.LoadLikedSet(kv, slog.New(slog.DiscardHandler)).Has(letterID))
}

func TestSend_ValidationError(t *testing.T) {
	isolateEnv(t)
	srv, _ := newAPI(t)

	_, err := execute(t, "--server", srv.URL, "--identity-file", filepath.Join(t.TempDir(), "id.json"),
		"send", "--member", "Jin", "-m", "you pig")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "letter not sent")
	assert.Contains(t, err.Error(), "name: is required")
	assert.Contains(t, err.Error(), "blocked words: pig")
}
