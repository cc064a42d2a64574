package service

import (
	"os"
	"path/filepath"
	"testing"

	"imgforge/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T, presets ...model.Preset) PromptResolver {
	t.Helper()
	catalog, err := NewPresetCatalog(presets)
	require.NoError(t, err)
	return NewPromptResolver(catalog, zerolog.Nop())
}

func TestPromptResolver_SubstitutesBothPlaceholders(t *testing.T) {
	r := newTestResolver(t, model.Preset{
		ID:       "retro",
		Template: "make it look like {prompt} in the style, ref: {image}",
	})

	got := r.Resolve("sunset", "retro", "http://x/u.jpg")
	assert.Equal(t, "make it look like sunset in the style, ref: http://x/u.jpg", got.Text)
	assert.Equal(t, "retro", got.PresetUsed)
}

func TestPromptResolver_AppendsMissingPieces(t *testing.T) {
	r := newTestResolver(t,
		model.Preset{ID: "sketch", Template: "pencil sketch"},
		model.Preset{ID: "noimage", Template: "oil painting of {prompt}"},
		model.Preset{ID: "noprompt", Template: "restyle {image} as pop art"},
	)

	assert.Equal(t, "pencil sketch, cats, reference image: http://x/u.jpg",
		r.Resolve("cats", "sketch", "http://x/u.jpg").Text)
	assert.Equal(t, "oil painting of cats, reference image: http://x/u.jpg",
		r.Resolve("cats", "noimage", "http://x/u.jpg").Text)
	assert.Equal(t, "restyle http://x/u.jpg as pop art, cats",
		r.Resolve("cats", "noprompt", "http://x/u.jpg").Text)
}

func TestPromptResolver_UnknownOrMissingPresetFallsBack(t *testing.T) {
	r := newTestResolver(t, model.Preset{ID: "retro", Template: "{prompt}"})

	for _, id := range []string{"", "custom", "does-not-exist"} {
		got := r.Resolve("  sunset  ", id, "http://x/u.jpg")
		assert.Equal(t, "sunset, reference image: http://x/u.jpg", got.Text, "preset %q", id)
		assert.Equal(t, model.PresetCustom, got.PresetUsed, "preset %q", id)
	}
}

func TestPromptResolver_NilCatalog(t *testing.T) {
	r := NewPromptResolver(nil, zerolog.Nop())
	got := r.Resolve("sunset", "retro", "http://x/u.jpg")
	assert.Equal(t, "sunset, reference image: http://x/u.jpg", got.Text)
	assert.Equal(t, model.PresetCustom, got.PresetUsed)
}

func TestPromptResolver_NormalizesPresetID(t *testing.T) {
	r := newTestResolver(t, model.Preset{ID: "Pencil Sketch", Template: "sketch of {prompt} from {image}"})

	got := r.Resolve("a cat", "pencil_sketch", "http://x/u.jpg")
	assert.Equal(t, "pencil-sketch", got.PresetUsed)
	assert.Equal(t, "sketch of a cat from http://x/u.jpg", got.Text)
}

func TestNewPresetCatalog_RejectsBadEntries(t *testing.T) {
	_, err := NewPresetCatalog([]model.Preset{{ID: "", Template: "x"}})
	assert.Error(t, err)

	_, err = NewPresetCatalog([]model.Preset{{ID: "a", Template: " "}})
	assert.Error(t, err)

	_, err = NewPresetCatalog([]model.Preset{{ID: "a", Template: "x"}, {ID: "A", Template: "y"}})
	assert.Error(t, err)

	_, err = NewPresetCatalog([]model.Preset{{ID: "custom", Template: "x"}})
	assert.Error(t, err)
}

func TestLoadPresetCatalog(t *testing.T) {
	t.Run("defaults when no path", func(t *testing.T) {
		c, err := LoadPresetCatalog("")
		require.NoError(t, err)
		assert.Len(t, c.List(), len(DefaultPresets))
		_, ok := c.Lookup("watercolor")
		assert.True(t, ok)
	})

	t.Run("yaml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "presets.yaml")
		data := `
presets:
  - id: neon
    name: Neon
    category: scene
    description: Neon glow
    template: "neon glow over {image}, {prompt}"
  - id: clay
    name: Claymation
    template: "claymation figure of {prompt}"
`
		require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

		c, err := LoadPresetCatalog(path)
		require.NoError(t, err)
		list := c.List()
		require.Len(t, list, 2)
		assert.Equal(t, "neon", list[0].ID)
		assert.Equal(t, "Neon glow", list[0].Description)
		assert.Equal(t, "Claymation", list[1].Name)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPresetCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("empty catalog", func(t *testing.T) {
		_, err := ParsePresetCatalog([]byte("presets: []\n"))
		assert.Error(t, err)
	})
}
