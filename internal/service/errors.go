package service

import (
	"errors"
	"fmt"

	"imgforge/internal/model"
)

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrGenerationNotFound     = errors.New("generation not found")
	ErrQuotaExceeded          = errors.New("daily generation quota exceeded")
	ErrInvalidGenerationState = errors.New("generation is not in a retryable state")
	ErrProviderUnavailable    = errors.New("image provider is not available")
	ErrEchoedOutput           = errors.New("provider returned the input image unchanged")
	ErrGenerationSuperseded   = errors.New("generation was resolved elsewhere before the attempt finished")
)

// ValidationError reports malformed caller input. Nothing has been written when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// QuotaExceededError carries the quota that refused the request.
type QuotaExceededError struct {
	Quota model.Quota
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily generation quota exceeded: %d/%d used, resets at %s",
		e.Quota.GenerationsUsed, e.Quota.GenerationsLimit, e.Quota.ResetAt.Format("2006-01-02T15:04:05Z07:00"))
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// ProviderErrorKind classifies a failed provider call.
type ProviderErrorKind string

const (
	ProviderErrorAuth      ProviderErrorKind = "auth"
	ProviderErrorQuota     ProviderErrorKind = "quota"
	ProviderErrorSafety    ProviderErrorKind = "safety"
	ProviderErrorTransient ProviderErrorKind = "transient"
	ProviderErrorMalformed ProviderErrorKind = "malformed"
)

// ProviderError is returned by ImageProvider implementations.
type ProviderError struct {
	Kind    ProviderErrorKind
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s error: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("provider %s error: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// errorCode maps the kind to the code recorded on the failed generation.
func (e *ProviderError) errorCode() string {
	switch e.Kind {
	case ProviderErrorAuth:
		return model.ErrorCodeProviderAuth
	case ProviderErrorQuota:
		return model.ErrorCodeProviderQuota
	case ProviderErrorSafety:
		return model.ErrorCodeProviderSafety
	case ProviderErrorMalformed:
		return model.ErrorCodeMalformed
	default:
		return model.ErrorCodeProvider
	}
}

// GenerationFailedError is returned when an attempt was recorded as failed.
// Err is ErrEchoedOutput, a *ProviderError, the storage error that ended the attempt, or
// ErrGenerationSuperseded when the record had already been resolved elsewhere.
type GenerationFailedError struct {
	Generation *model.Generation
	Quota      QuotaSnapshot
	Code       string
	Err        error
}

func (e *GenerationFailedError) Error() string {
	return fmt.Sprintf("generation %s failed (%s): %v", e.Generation.ID, e.Code, e.Err)
}

func (e *GenerationFailedError) Unwrap() error { return e.Err }
