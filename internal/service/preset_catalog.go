package service

import (
	"fmt"
	"os"
	"strings"

	"imgforge/internal/model"

	"gopkg.in/yaml.v3"
)

// PresetCatalog is the set of prompt templates users can pick from.
type PresetCatalog interface {
	Lookup(id string) (model.Preset, bool)
	List() []model.Preset
}

// DefaultPresets is used when no catalog file is configured.
var DefaultPresets = []model.Preset{
	{
		ID:          "watercolor",
		Name:        "Watercolor",
		Category:    "painting",
		Description: "Soft watercolor painting with visible paper texture.",
		Template:    "Repaint {image} as a delicate watercolor painting of {prompt}, soft washes, visible paper grain",
	},
	{
		ID:          "anime",
		Name:        "Anime",
		Category:    "illustration",
		Description: "Clean cel-shaded anime illustration.",
		Template:    "Transform {image} into a cel-shaded anime illustration, {prompt}, clean line art, vibrant colors",
	},
	{
		ID:          "cyberpunk",
		Name:        "Cyberpunk",
		Category:    "scene",
		Description: "Neon-lit futuristic city mood.",
		Template:    "Restyle the reference photo as a neon cyberpunk scene, {prompt}, rain-soaked streets, magenta and teal lighting",
	},
	{
		ID:          "pencil-sketch",
		Name:        "Pencil Sketch",
		Category:    "drawing",
		Description: "Graphite sketch on textured paper.",
		Template:    "Hand-drawn graphite pencil sketch, cross-hatching, textured paper",
	},
	{
		ID:          "vintage-photo",
		Name:        "Vintage Photo",
		Category:    "photography",
		Description: "Faded 1970s film photograph.",
		Template:    "make it look like {prompt} in the style of a faded 1970s film photograph, ref: {image}",
	},
}

type presetCatalog struct {
	byID    map[string]model.Preset
	ordered []model.Preset
}

// NewPresetCatalog indexes presets by normalized id. Duplicate or empty ids are rejected.
func NewPresetCatalog(presets []model.Preset) (PresetCatalog, error) {
	c := &presetCatalog{byID: make(map[string]model.Preset, len(presets))}
	for _, p := range presets {
		id := normalizePresetID(p.ID)
		if id == "" {
			return nil, fmt.Errorf("preset %q has an empty id", p.Name)
		}
		if id == model.PresetCustom {
			return nil, fmt.Errorf("preset id %q is reserved", id)
		}
		if strings.TrimSpace(p.Template) == "" {
			return nil, fmt.Errorf("preset %q has an empty template", id)
		}
		if _, dup := c.byID[id]; dup {
			return nil, fmt.Errorf("duplicate preset id %q", id)
		}
		p.ID = id
		if p.Name == "" {
			p.Name = id
		}
		c.byID[id] = p
		c.ordered = append(c.ordered, p)
	}
	return c, nil
}

type presetFile struct {
	Presets []model.Preset `yaml:"presets"`
}

// LoadPresetCatalog reads a YAML catalog from path, or returns the built-in one when path is empty.
func LoadPresetCatalog(path string) (PresetCatalog, error) {
	if path == "" {
		return NewPresetCatalog(DefaultPresets)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading preset catalog %s: %w", path, err)
	}
	return ParsePresetCatalog(data)
}

func ParsePresetCatalog(data []byte) (PresetCatalog, error) {
	var f presetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing preset catalog: %w", err)
	}
	if len(f.Presets) == 0 {
		return nil, fmt.Errorf("preset catalog has no presets")
	}
	return NewPresetCatalog(f.Presets)
}

func (c *presetCatalog) Lookup(id string) (model.Preset, bool) {
	p, ok := c.byID[normalizePresetID(id)]
	return p, ok
}

func (c *presetCatalog) List() []model.Preset {
	out := make([]model.Preset, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// normalizePresetID lowercases and hyphenates, so "Pencil Sketch" and "pencil_sketch" match "pencil-sketch".
func normalizePresetID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	return strings.Join(strings.FieldsFunc(id, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-'
	}), "-")
}
