package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter("production", &buf)

	logger.Debug().Msg("hidden")
	logger.Info().Int("player_id", 3).Msg("synced")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "synced", entry["message"])
	assert.Equal(t, float64(3), entry["player_id"])
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

func TestSetupDevelopmentIsVerbose(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter("development", &buf)

	logger.Debug().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
}
