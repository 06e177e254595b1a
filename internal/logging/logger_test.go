package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, zerolog.InfoLevel, "json")

	log.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())

	log.Info().Str("flow_id", "f1").Msg("flow saved")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "flow", entry["service"])
	assert.Equal(t, "f1", entry["flow_id"])
	assert.Equal(t, "flow saved", entry["message"])
}

func TestNewWithWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, zerolog.DebugLevel, "console")
	log.Debug().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(buf.Bytes()))
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Config{Level: "loud", Output: "stderr"})
	require.Error(t, err)

	_, err = New(Config{Level: "info", Output: "/dev/null"})
	require.Error(t, err)

	_, err = New(Config{Level: "warn", Output: "stdout", Format: "json"})
	require.NoError(t, err)
}
