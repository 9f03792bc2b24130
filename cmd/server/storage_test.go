package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/marquee/internal/config"
	"github.com/Nixie-Tech-LLC/marquee/internal/storage"
)

func TestInitLocator(t *testing.T) {
	loc, err := InitLocator(&config.Config{MediaBaseURL: "http://media.local"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &storage.LocalLocator{}, loc)
	u, err := loc.Locate("clips/a.mp4")
	require.NoError(t, err)
	assert.Equal(t, "http://media.local/clips/a.mp4", u)

	loc, err = InitLocator(&config.Config{
		UseSpaces:       true,
		SpacesEndpoint:  "https://nyc3.digitaloceanspaces.com",
		SpacesRegion:    "nyc3",
		SpacesBucket:    "media",
		SpacesCDNURL:    "https://cdn.example.com",
		SpacesAccessKey: "key",
		SpacesSecretKey: "secret",
	}, zerolog.Nop())
	require.NoError(t, err)
	u, err = loc.Locate("clips/a.mp4")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/clips/a.mp4", u)
}
