package service

import (
	"strings"

	"imgforge/internal/model"

	"github.com/rs/zerolog"
)

// Template placeholders understood by the resolver.
const (
	PromptPlaceholder = "{prompt}"
	ImagePlaceholder  = "{image}"
)

// ResolvedPrompt is the text sent to the provider and the preset recorded for it.
type ResolvedPrompt struct {
	Text       string
	PresetUsed string
}

type PromptResolver interface {
	// Resolve never fails. Unknown presets resolve as custom prompts.
	Resolve(rawPrompt, presetID, imageURL string) ResolvedPrompt
}

type promptResolver struct {
	catalog PresetCatalog
	logger  zerolog.Logger
}

func NewPromptResolver(catalog PresetCatalog, logger zerolog.Logger) PromptResolver {
	return &promptResolver{
		catalog: catalog,
		logger:  logger.With().Str("service", "PromptResolver").Logger(),
	}
}

func (r *promptResolver) Resolve(rawPrompt, presetID, imageURL string) ResolvedPrompt {
	rawPrompt = strings.TrimSpace(rawPrompt)
	id := normalizePresetID(presetID)
	if id == "" || id == model.PresetCustom || r.catalog == nil {
		return customPrompt(rawPrompt, imageURL)
	}

	preset, ok := r.catalog.Lookup(id)
	if !ok {
		r.logger.Warn().Str("preset_id", presetID).Msg("Unknown preset, using custom prompt")
		return customPrompt(rawPrompt, imageURL)
	}
	return ResolvedPrompt{
		Text:       applyTemplate(preset.Template, rawPrompt, imageURL),
		PresetUsed: preset.ID,
	}
}

// applyTemplate substitutes the fixed placeholders. Whatever the template does not reference is
// appended so neither the user's words nor the image reference are dropped.
func applyTemplate(tmpl, rawPrompt, imageURL string) string {
	hasPrompt := strings.Contains(tmpl, PromptPlaceholder)
	hasImage := strings.Contains(tmpl, ImagePlaceholder)

	text := strings.NewReplacer(PromptPlaceholder, rawPrompt, ImagePlaceholder, imageURL).Replace(tmpl)
	text = strings.TrimSpace(text)
	if !hasPrompt && rawPrompt != "" {
		text += ", " + rawPrompt
	}
	if !hasImage && imageURL != "" {
		text += ", reference image: " + imageURL
	}
	return text
}

func customPrompt(rawPrompt, imageURL string) ResolvedPrompt {
	text := rawPrompt
	if imageURL != "" {
		text += ", reference image: " + imageURL
	}
	return ResolvedPrompt{Text: text, PresetUsed: model.PresetCustom}
}
