package providers

import (
	"github.com/samber/do/v2"

	"github.com/armyletters/letters-server/internal/config"
	"github.com/armyletters/letters-server/internal/logger"
	"github.com/armyletters/letters-server/internal/media/card"
	"github.com/armyletters/letters-server/internal/media/cover"
	"github.com/armyletters/letters-server/internal/service"
	"github.com/armyletters/letters-server/internal/share"
	"github.com/armyletters/letters-server/internal/spotify"
)

// ProvideShareBuilder provides the share link builder.
func ProvideShareBuilder(i do.Injector) (*share.Builder, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return share.NewBuilder(cfg.Web.BaseURL, cfg.Web.SiteName), nil
}

// ProvideLetterService provides the letter service.
func ProvideLetterService(i do.Injector) (*service.LetterService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	covers := do.MustInvoke[*cover.Hasher](i)
	cards := do.MustInvoke[*card.Cache](i)
	links := do.MustInvoke[*share.Builder](i)
	blocklist := do.MustInvoke[*ProfanityWatcherHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewLetterService(
		storeHandle.LetterStore,
		covers,
		cards,
		links,
		blocklist.Watcher,
		log.Component("letters").Logger,
	), nil
}

// ProvideSongService provides the song search proxy.
func ProvideSongService(i do.Injector) (*service.SongService, error) {
	client := do.MustInvoke[*spotify.Client](i)
	log := do.MustInvoke[*logger.Logger](i)
	return service.NewSongService(client, log.Component("songs").Logger), nil
}
