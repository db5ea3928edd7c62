// Package di provides dependency injection configuration for the letters server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/armyletters/letters-server/internal/config"
	"github.com/armyletters/letters-server/internal/di/providers"
	"github.com/armyletters/letters-server/internal/logger"
	"github.com/armyletters/letters-server/internal/media/card"
	"github.com/armyletters/letters-server/internal/media/cover"
	"github.com/armyletters/letters-server/internal/service"
	"github.com/armyletters/letters-server/internal/share"
	"github.com/armyletters/letters-server/internal/spotify"
)

// NewContainer creates the container, loading configuration from the
// process arguments and environment.
func NewContainer() *do.RootScope {
	injector := do.New()
	do.Provide(injector, providers.ProvideConfig)
	register(injector)
	return injector
}

// NewContainerWithConfig creates the container around an already loaded
// configuration.
func NewContainerWithConfig(cfg *config.Config) *do.RootScope {
	injector := do.New()
	do.ProvideValue(injector, cfg)
	register(injector)
	return injector
}

func register(injector do.Injector) {
	// Core infrastructure
	do.Provide(injector, providers.ProvideLogger)

	// Database layer
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideProfanityWatcher)
	do.Provide(injector, providers.ProvideStore)

	// Search layer
	do.Provide(injector, providers.ProvideSearchIndex)
	do.Provide(injector, providers.ProvideSearchService)

	// Media and catalog
	do.Provide(injector, providers.ProvideCardCache)
	do.Provide(injector, providers.ProvideCoverHasher)
	do.Provide(injector, providers.ProvideSpotifyClient)

	// Business services
	do.Provide(injector, providers.ProvideShareBuilder)
	do.Provide(injector, providers.ProvideLetterService)
	do.Provide(injector, providers.ProvideSongService)

	// Server
	do.Provide(injector, providers.ProvideRateLimiters)
	do.Provide(injector, providers.ProvideHTTPServer)
}

// Bootstrap initializes every service, repairs old letters, starts the
// HTTP server and schedules a reindex when the search index lags.
func Bootstrap(injector do.Injector) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.ProfanityWatcherHandle](injector)
	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.SearchIndexHandle](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*service.SearchService](injector)
	if _, err := do.Invoke[*card.Cache](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*cover.Hasher](injector)
	_ = do.MustInvoke[*spotify.Client](injector)
	_ = do.MustInvoke[*share.Builder](injector)

	// Business services
	_ = do.MustInvoke[*service.LetterService](injector)
	_ = do.MustInvoke[*service.SongService](injector)

	providers.BackfillLettersIfNeeded(injector)

	// Server
	_ = do.MustInvoke[*providers.RateLimiters](injector)
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	providers.TriggerSearchReindexIfNeeded(injector)

	return nil
}
