package di

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armyletters/letters-server/internal/config"
	"github.com/armyletters/letters-server/internal/di/providers"
	"github.com/armyletters/letters-server/internal/domain"
	"github.com/armyletters/letters-server/internal/service"
)

func testConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	t.Setenv("SPOTIFY_CLIENT_ID", "")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "")

	dir := t.TempDir()
	cfg, err := config.Load([]string{
		"-env-file", filepath.Join(dir, "missing.env"),
		"-env", "staging",
		"-log-level", "error",
		"-data-path", dir,
		"-store-driver", driver,
		"-port", "0",
	})
	require.NoError(t, err)
	return cfg
}

func TestBootstrap(t *testing.T) {
	for _, driver := range []string{config.DriverBadger, config.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			injector := NewContainerWithConfig(testConfig(t, driver))
			t.Cleanup(func() { _ = injector.Shutdown() })

			require.NoError(t, Bootstrap(injector))

			letters := do.MustInvoke[*service.LetterService](injector)
			ctx := context.Background()
			created, err := letters.Create(ctx, domain.Draft{
				Name:    "Anna",
				Member:  domain.MemberJin,
				Message: "Thank you for everything",
			})
			require.NoError(t, err)

			got, err := letters.Get(ctx, created.ID)
			require.NoError(t, err)
			assert.Equal(t, "Anna", got.Name)

			searchSvc := do.MustInvoke[*service.SearchService](injector)
			assert.Eventually(t, func() bool {
				n, err := searchSvc.DocumentCount()
				return err == nil && n == 1
			}, 5*time.Second, 20*time.Millisecond, "new letters reach the index")

			handle := do.MustInvoke[*providers.StoreHandle](injector)
			n, err := handle.CountLetters(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestBootstrap_StoreUsesBlocklist(t *testing.T) {
	injector := NewContainerWithConfig(testConfig(t, config.DriverBadger))
	t.Cleanup(func() { _ = injector.Shutdown() })
	require.NoError(t, Bootstrap(injector))

	handle := do.MustInvoke[*providers.StoreHandle](injector)
	_, err := handle.Create(context.Background(), domain.Draft{
		Name:    "Anna",
		Member:  domain.MemberJin,
		Message: "you pig",
	})
	require.Error(t, err)
}
