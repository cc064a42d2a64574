package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"imgforge/internal/api/v1/dto"
	"imgforge/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// multipartOverhead is headroom for form fields and part headers on top of the file limit.
const multipartOverhead = 1 << 20

type GenerationHandler struct {
	generationService service.GenerationService
	validate          *validator.Validate
	maxUploadBytes    int64
	logger            zerolog.Logger
}

func NewGenerationHandler(generationService service.GenerationService, v *validator.Validate, maxUploadBytes int64, logger zerolog.Logger) *GenerationHandler {
	return &GenerationHandler{
		generationService: generationService,
		validate:          v,
		maxUploadBytes:    maxUploadBytes,
		logger:            logger.With().Str("handler", "GenerationHandler").Logger(),
	}
}

// RegisterRoutes mounts v1 generation routes
func (h *GenerationHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("POST /generations", authMw(http.HandlerFunc(h.createGeneration)))
	mux.Handle("GET /generations", authMw(http.HandlerFunc(h.listGenerations)))
	mux.Handle("GET /generations/{generationId}", authMw(http.HandlerFunc(h.getGeneration)))
	mux.Handle("POST /generations/{generationId}/retry", authMw(http.HandlerFunc(h.retryGeneration)))
	mux.Handle("GET /quota", authMw(http.HandlerFunc(h.getQuota)))
}

// @Summary Generate an image from an uploaded image and a prompt
// @Description Transforms the uploaded image with the prompt, optionally expanded through a preset.
// @Tags generations
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Source image (jpeg, png or webp)"
// @Param prompt formData string true "Prompt"
// @Param preset_id formData string false "Preset ID"
// @Param size formData string false "Output size, e.g. 1024x1024"
// @Success 201 {object} dto.GenerationResponseDTO
// @Failure 400 {object} dto.ErrorResponseDTO
// @Failure 422 {object} dto.ErrorResponseDTO
// @Failure 429 {object} dto.ErrorResponseDTO
// @Failure 502 {object} dto.ErrorResponseDTO
// @Failure 503 {object} dto.ErrorResponseDTO
// @Router /generations [post]
func (h *GenerationHandler) createGeneration(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUploadBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorBody(w, http.StatusRequestEntityTooLarge, "validation_error", "request body too large")
			return
		}
		writeErrorBody(w, http.StatusBadRequest, "validation_error", "invalid multipart form: "+err.Error())
		return
	}

	req := dto.GenerateRequestDTO{
		Prompt:   strings.TrimSpace(r.FormValue("prompt")),
		PresetID: r.FormValue("preset_id"),
		Size:     r.FormValue("size"),
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErrorBody(w, http.StatusBadRequest, "validation_error", "file: an image file is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeErrorBody(w, http.StatusBadRequest, "validation_error", "file: could not be read")
		return
	}

	res, err := h.generationService.Generate(r.Context(), service.GenerateInput{
		UserID:        userID,
		Prompt:        req.Prompt,
		PresetID:      req.PresetID,
		Size:          req.Size,
		Image:         data,
		ImageMIMEType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, generationResponse(res))
}

// @Summary Get a generation
// @Tags generations
// @Produce json
// @Param generationId path string true "Generation ID"
// @Success 200 {object} dto.GenerationDetailDTO
// @Failure 404 {object} dto.ErrorResponseDTO
// @Router /generations/{generationId} [get]
func (h *GenerationHandler) getGeneration(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}
	gen, err := h.generationService.GetGeneration(r.Context(), userID, r.PathValue("generationId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, generationDetail(gen))
}

// @Summary Retry a failed generation
// @Tags generations
// @Produce json
// @Param generationId path string true "Generation ID"
// @Success 200 {object} dto.GenerationResponseDTO
// @Failure 404 {object} dto.ErrorResponseDTO
// @Failure 409 {object} dto.ErrorResponseDTO
// @Failure 429 {object} dto.ErrorResponseDTO
// @Router /generations/{generationId}/retry [post]
func (h *GenerationHandler) retryGeneration(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}
	res, err := h.generationService.Retry(r.Context(), userID, r.PathValue("generationId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, generationResponse(res))
}

// @Summary List the caller's generations, newest first
// @Tags generations
// @Produce json
// @Param limit query int false "Page size (default 20, max 100)"
// @Param offset query int false "Offset"
// @Success 200 {object} dto.GenerationListDTO
// @Router /generations [get]
func (h *GenerationHandler) listGenerations(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}
	limit := intQuery(r, "limit", 0)
	offset := intQuery(r, "offset", 0)

	page, err := h.generationService.ListGenerations(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp := dto.GenerationListDTO{
		Generations: make([]dto.GenerationDetailDTO, 0, len(page.Generations)),
		Limit:       page.Limit,
		Offset:      page.Offset,
	}
	for i := range page.Generations {
		resp.Generations = append(resp.Generations, generationDetail(&page.Generations[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// @Summary Get today's quota
// @Tags quota
// @Produce json
// @Success 200 {object} dto.QuotaDTO
// @Failure 404 {object} dto.ErrorResponseDTO
// @Router /quota [get]
func (h *GenerationHandler) getQuota(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}
	q, err := h.generationService.GetQuota(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, quotaDTO(*q))
}

func generationResponse(res *service.GenerationResult) dto.GenerationResponseDTO {
	return dto.GenerationResponseDTO{
		Status:        string(res.Generation.Status),
		GenerationID:  res.Generation.ID,
		ImageRef:      res.Generation.GeneratedImageURL,
		IsPlaceholder: res.Generation.IsPlaceholder,
		Persisted:     res.Durable,
		Quota:         quotaUsage(res.Quota),
	}
}
