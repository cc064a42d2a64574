package dto

import "time"

// GenerateRequestDTO holds the text fields of a multipart generation request.
// The image itself travels as the "file" form part.
type GenerateRequestDTO struct {
	Prompt   string `validate:"required,max=1000"`
	PresetID string `validate:"omitempty,max=64"`
	Size     string `validate:"omitempty,oneof=512x512 768x768 1024x1024 768x1024 1024x768"`
}

// QuotaUsageDTO is the compact quota attached to generation responses.
type QuotaUsageDTO struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

// GenerationResponseDTO is returned by generate and retry.
type GenerationResponseDTO struct {
	Status        string        `json:"status"`
	GenerationID  string        `json:"generation_id"`
	ImageRef      *string       `json:"image_ref"`
	IsPlaceholder bool          `json:"is_placeholder"`
	Persisted     bool          `json:"persisted"`
	Quota         QuotaUsageDTO `json:"quota"`
}

type GenerationMetadataDTO struct {
	Width            int    `json:"width,omitempty"`
	Height           int    `json:"height,omitempty"`
	SizeBytes        int64  `json:"size_bytes,omitempty"`
	MimeType         string `json:"mime_type,omitempty"`
	OutputSize       string `json:"output_size,omitempty"`
	ProcessingTimeMs int64  `json:"processing_time_ms,omitempty"`
	Model            string `json:"model,omitempty"`
	RetryCount       int    `json:"retry_count"`
}

// GenerationDetailDTO is the full view of one generation record.
type GenerationDetailDTO struct {
	GenerationID        string                `json:"generation_id"`
	Status              string                `json:"status"`
	Prompt              string                `json:"prompt"`
	PresetUsed          string                `json:"preset_used"`
	OriginalImageURL    *string               `json:"original_image_url"`
	GeneratedImageURL   *string               `json:"generated_image_url"`
	IsPlaceholder       bool                  `json:"is_placeholder"`
	ErrorCode           *string               `json:"error_code"`
	ErrorMessage        *string               `json:"error_message"`
	Metadata            GenerationMetadataDTO `json:"metadata"`
	ProcessingStartTime time.Time             `json:"processing_start_time"`
	ProcessingEndTime   *time.Time            `json:"processing_end_time"`
	CreatedAt           time.Time             `json:"created_at"`
}

type GenerationListDTO struct {
	Generations []GenerationDetailDTO `json:"generations"`
	Limit       int                   `json:"limit"`
	Offset      int                   `json:"offset"`
}

// QuotaDTO is the caller's quota for the current day.
type QuotaDTO struct {
	Day             string    `json:"day"`
	Used            int       `json:"used"`
	Limit           int       `json:"limit"`
	Remaining       int       `json:"remaining"`
	UsagePercentage int       `json:"usage_percentage"`
	Status          string    `json:"status"`
	ResetAt         time.Time `json:"reset_at"`
}

type PresetDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// ErrorResponseDTO is the body of every non-2xx API response.
type ErrorResponseDTO struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	GenerationID string `json:"generation_id,omitempty"`
}
