package handler

import (
	"net/http"

	"imgforge/internal/api/v1/dto"
	"imgforge/internal/service"
)

type PresetHandler struct {
	catalog service.PresetCatalog
}

func NewPresetHandler(catalog service.PresetCatalog) *PresetHandler {
	return &PresetHandler{catalog: catalog}
}

// RegisterRoutes mounts v1 preset routes
func (h *PresetHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("GET /presets", authMw(http.HandlerFunc(h.listPresets)))
}

// @Summary List prompt presets
// @Tags presets
// @Produce json
// @Success 200 {array} dto.PresetDTO
// @Router /presets [get]
func (h *PresetHandler) listPresets(w http.ResponseWriter, r *http.Request) {
	presets := h.catalog.List()
	resp := make([]dto.PresetDTO, 0, len(presets))
	for _, p := range presets {
		resp = append(resp, dto.PresetDTO{
			ID:          p.ID,
			Name:        p.Name,
			Category:    p.Category,
			Description: p.Description,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
