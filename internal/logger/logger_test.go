package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLevelFor(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, levelFor("development", ""))
	assert.Equal(t, zerolog.InfoLevel, levelFor("production", ""))
	assert.Equal(t, zerolog.WarnLevel, levelFor("development", "warn"))
	assert.Equal(t, zerolog.InfoLevel, levelFor("production", "nonsense"))
}
