package service

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizePlaceholder(t *testing.T) {
	data, err := SynthesizePlaceholder(64, 32, "sunset")
	require.NoError(t, err)

	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Width)
	assert.Equal(t, 32, cfg.Height)

	again, err := SynthesizePlaceholder(64, 32, "sunset")
	require.NoError(t, err)
	assert.Equal(t, data, again, "same seed must render the same image")

	other, err := SynthesizePlaceholder(64, 32, "forest")
	require.NoError(t, err)
	assert.NotEqual(t, data, other)
}

func TestSynthesizePlaceholder_InvalidSize(t *testing.T) {
	_, err := SynthesizePlaceholder(0, 10, "x")
	assert.Error(t, err)
}
