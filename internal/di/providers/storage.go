package providers

import (
	"github.com/samber/do/v2"

	"github.com/armyletters/letters-server/internal/config"
	"github.com/armyletters/letters-server/internal/logger"
	"github.com/armyletters/letters-server/internal/media/card"
)

// ProvideCardCache provides the on-disk cache of rendered letter cards.
func ProvideCardCache(i do.Injector) (*card.Cache, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	cache, err := card.NewCache(cfg.CardCachePath())
	if err != nil {
		return nil, err
	}

	log.Info("Card cache initialized", "path", cfg.CardCachePath())
	return cache, nil
}
