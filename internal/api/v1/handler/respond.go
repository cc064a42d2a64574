package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"imgforge/internal/api/v1/dto"
	"imgforge/internal/middleware"
	"imgforge/internal/model"
	"imgforge/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErrorBody(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponseDTO{Error: code, Message: message})
}

// writeError maps a service error onto its HTTP status and JSON body.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	var (
		validationErr *service.ValidationError
		quotaErr      *service.QuotaExceededError
		failedErr     *service.GenerationFailedError
		providerErr   *service.ProviderError
		fieldErrs     validator.ValidationErrors
	)

	switch {
	case errors.As(err, &validationErr):
		writeErrorBody(w, http.StatusBadRequest, "validation_error", validationErr.Error())
	case errors.As(err, &fieldErrs):
		writeErrorBody(w, http.StatusBadRequest, "validation_error", describeFieldErrors(fieldErrs))
	case errors.Is(err, service.ErrUserNotFound), errors.Is(err, service.ErrGenerationNotFound):
		writeErrorBody(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrInvalidGenerationState):
		writeErrorBody(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.As(err, &quotaErr):
		if wait := time.Until(quotaErr.Quota.ResetAt); wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
		}
		writeErrorBody(w, http.StatusTooManyRequests, "quota_exceeded", err.Error())
	case errors.Is(err, service.ErrQuotaExceeded):
		writeErrorBody(w, http.StatusTooManyRequests, "quota_exceeded", err.Error())
	case errors.Is(err, service.ErrProviderUnavailable):
		writeErrorBody(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
	case errors.As(err, &failedErr):
		writeJSON(w, failedStatus(failedErr), dto.ErrorResponseDTO{
			Error:        failedErr.Code,
			Message:      failedMessage(failedErr),
			GenerationID: failedErr.Generation.ID,
		})
	case errors.As(err, &providerErr):
		writeErrorBody(w, providerStatus(providerErr.Kind), "provider_"+string(providerErr.Kind), providerErr.Message)
	default:
		logger.Error().Err(err).Msg("Unhandled request error")
		writeErrorBody(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func failedStatus(e *service.GenerationFailedError) int {
	var providerErr *service.ProviderError
	switch {
	case errors.Is(e, service.ErrEchoedOutput):
		return http.StatusUnprocessableEntity
	case errors.Is(e, service.ErrGenerationSuperseded):
		return http.StatusConflict
	case errors.As(e, &providerErr):
		return providerStatus(providerErr.Kind)
	default:
		return http.StatusInternalServerError
	}
}

func failedMessage(e *service.GenerationFailedError) string {
	if e.Generation.ErrorMessage != nil && e.Code != model.ErrorCodeStorage {
		return *e.Generation.ErrorMessage
	}
	return "generation failed"
}

func providerStatus(kind service.ProviderErrorKind) int {
	if kind == service.ProviderErrorSafety {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}

func describeFieldErrors(errs validator.ValidationErrors) string {
	if len(errs) == 0 {
		return "invalid request"
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "oneof":
		return fe.Field() + " must be one of " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}

// userIDFrom writes a 401 and returns false when the request carries no authenticated user.
func userIDFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeErrorBody(w, http.StatusUnauthorized, "unauthorized", "user ID not found in context")
	}
	return userID, ok
}

func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func quotaUsage(q service.QuotaSnapshot) dto.QuotaUsageDTO {
	return dto.QuotaUsageDTO{Used: q.Used, Limit: q.Limit, Remaining: q.Remaining}
}

func quotaDTO(q service.QuotaSnapshot) dto.QuotaDTO {
	return dto.QuotaDTO{
		Day:             q.Day,
		Used:            q.Used,
		Limit:           q.Limit,
		Remaining:       q.Remaining,
		UsagePercentage: q.UsagePercentage,
		Status:          string(q.Status),
		ResetAt:         q.ResetAt,
	}
}

func generationDetail(g *model.Generation) dto.GenerationDetailDTO {
	return dto.GenerationDetailDTO{
		GenerationID:      g.ID,
		Status:            string(g.Status),
		Prompt:            g.Prompt,
		PresetUsed:        g.PresetUsed,
		OriginalImageURL:  g.OriginalImageURL,
		GeneratedImageURL: g.GeneratedImageURL,
		IsPlaceholder:     g.IsPlaceholder,
		ErrorCode:         g.ErrorCode,
		ErrorMessage:      g.ErrorMessage,
		Metadata: dto.GenerationMetadataDTO{
			Width:            g.Metadata.Width,
			Height:           g.Metadata.Height,
			SizeBytes:        g.Metadata.SizeBytes,
			MimeType:         g.Metadata.MimeType,
			OutputSize:       g.Metadata.OutputSize,
			ProcessingTimeMs: g.Metadata.ProcessingTimeMs,
			Model:            g.Metadata.Model,
			RetryCount:       g.Metadata.RetryCount,
		},
		ProcessingStartTime: g.ProcessingStartTime,
		ProcessingEndTime:   g.ProcessingEndTime,
		CreatedAt:           g.CreatedAt,
	}
}
