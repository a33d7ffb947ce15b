package util

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogJSON(t *testing.T) {
	var buf bytes.Buffer
	InitLogTo(&buf, "debug", false)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	Info().Str("paste_id", "Ab3D9").Msg("paste stored")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "kvpaste", entry["service"])
	assert.Equal(t, "Ab3D9", entry["paste_id"])
	assert.NotContains(t, entry, "caller")
}

func TestInitLogLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	InitLogTo(&buf, "warn", false)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	Warn().Msg("kept")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Contains(t, entry, "caller")
}

func TestInitLogUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	InitLogTo(&buf, "verbose", false)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
