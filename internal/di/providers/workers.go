package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/armyletters/letters-server/internal/config"
	"github.com/armyletters/letters-server/internal/logger"
	"github.com/armyletters/letters-server/internal/profanity"
	"github.com/armyletters/letters-server/internal/ratelimit"
)

// ProfanityWatcherHandle wraps the block-list watcher with shutdown capability.
type ProfanityWatcherHandle struct {
	*profanity.Watcher
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *ProfanityWatcherHandle) Shutdown() error {
	h.cancel()
	return h.Watcher.Close()
}

// ProvideProfanityWatcher provides the block list, reloading the optional
// extra words file when it changes.
func ProvideProfanityWatcher(i do.Injector) (*ProfanityWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	w, err := profanity.NewWatcher(cfg.Profanity.BlocklistPath, log.Component("profanity").Logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	if cfg.Profanity.BlocklistPath != "" {
		log.Info("Block list loaded",
			"path", cfg.Profanity.BlocklistPath,
			"words", w.Filter().Len(),
		)
	}

	return &ProfanityWatcherHandle{Watcher: w, cancel: cancel}, nil
}

// RateLimiters holds the per-IP limiters of the public API.
type RateLimiters struct {
	Write *ratelimit.KeyedRateLimiter
	Song  *ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (r *RateLimiters) Shutdown() error {
	r.Write.Stop()
	r.Song.Stop()
	return nil
}

// ProvideRateLimiters provides the write and song search limiters.
func ProvideRateLimiters(i do.Injector) (*RateLimiters, error) {
	cfg := do.MustInvoke[*config.Config](i)

	return &RateLimiters{
		Write: ratelimit.New(cfg.RateLimit.WriteRPS, cfg.RateLimit.WriteBurst),
		Song:  ratelimit.New(cfg.RateLimit.SongRPS, cfg.RateLimit.SongBurst),
	}, nil
}
