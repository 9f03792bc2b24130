package main

import (
	"github.com/rs/zerolog"

	"github.com/Nixie-Tech-LLC/marquee/internal/config"
	"github.com/Nixie-Tech-LLC/marquee/internal/storage"
)

// InitLocator selects how stored media keys become URLs.
func InitLocator(cfg *config.Config, logger zerolog.Logger) (storage.Locator, error) {
	if cfg.UseSpaces {
		spaces, err := storage.NewSpacesLocator(
			cfg.SpacesEndpoint,
			cfg.SpacesRegion,
			cfg.SpacesBucket,
			cfg.SpacesCDNURL,
			cfg.SpacesAccessKey,
			cfg.SpacesSecretKey,
		)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("bucket", cfg.SpacesBucket).Str("cdn", cfg.SpacesCDNURL).Msg("using DigitalOcean Spaces media URLs")
		return spaces, nil
	}

	logger.Info().Str("base_url", cfg.MediaBaseURL).Msg("using local media URLs")
	return storage.NewLocalLocator(cfg.MediaBaseURL), nil
}
