package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"loud", zerolog.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestSetup_ConsoleAndFile(t *testing.T) {
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	var console bytes.Buffer
	dir := t.TempDir()
	path, closer, err := Setup(Config{Level: "warn", Dir: dir, Console: true, NoColor: true, Out: &console})
	require.NoError(t, err)
	require.NotEmpty(t, path)

	log.Info().Msg("hidden")
	log.Warn().Str("stage", "chat").Msg("visible")
	require.NoError(t, closer())

	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "visible")
	assert.Contains(t, console.String(), "stage=chat")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"message":"visible"`))
}

func TestSetup_RejectsUnknownLevel(t *testing.T) {
	_, _, err := Setup(Config{Level: "verbose"})
	assert.Error(t, err)
}
