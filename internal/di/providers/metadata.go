package providers

import (
	"github.com/samber/do/v2"

	"github.com/armyletters/letters-server/internal/config"
	"github.com/armyletters/letters-server/internal/logger"
	"github.com/armyletters/letters-server/internal/media/cover"
	"github.com/armyletters/letters-server/internal/spotify"
)

// ProvideSpotifyClient provides the song catalog client. Without
// credentials every search fails with a lookup error.
func ProvideSpotifyClient(i do.Injector) (*spotify.Client, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	client := spotify.New(spotify.Options{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		TokenURL:     cfg.Spotify.TokenURL,
		SearchURL:    cfg.Spotify.SearchURL,
		CacheTTL:     cfg.Spotify.CacheTTL,
		RPS:          cfg.Spotify.RPS,
	}, log.Component("spotify").Logger)

	if !client.Configured() {
		log.Warn("Spotify credentials not set, song search disabled")
	}
	return client, nil
}

// ProvideCoverHasher provides the album cover placeholder encoder.
func ProvideCoverHasher(i do.Injector) (*cover.Hasher, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return cover.NewHasher(cover.Options{}, log.Component("cover").Logger), nil
}
