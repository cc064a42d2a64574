package model

import "time"

// GenerationStatus is the lifecycle state of a generation attempt.
type GenerationStatus string

const (
	GenerationProcessing GenerationStatus = "processing"
	GenerationCompleted  GenerationStatus = "completed"
	GenerationFailed     GenerationStatus = "failed"
)

// Terminal reports whether no further transition is allowed without a retry.
func (s GenerationStatus) Terminal() bool {
	return s == GenerationCompleted || s == GenerationFailed
}

// PresetCustom is recorded when no catalog preset was applied.
const PresetCustom = "custom"

// Error codes recorded on failed generations.
const (
	ErrorCodeEchoedOutput   = "echoed_output"
	ErrorCodeProviderAuth   = "provider_auth"
	ErrorCodeProviderQuota  = "provider_quota"
	ErrorCodeProviderSafety = "content_filtered"
	ErrorCodeMalformed      = "provider_malformed"
	ErrorCodeStorage        = "storage_error"
	ErrorCodeTimeout        = "timeout"
	ErrorCodeProvider       = "provider_error"
)

// GenerationMetadata is the free-form bag stored alongside a generation.
type GenerationMetadata struct {
	Width            int    `json:"width,omitempty"`
	Height           int    `json:"height,omitempty"`
	SizeBytes        int64  `json:"size_bytes,omitempty"`
	MimeType         string `json:"mime_type,omitempty"`
	InputMimeType    string `json:"input_mime_type,omitempty"`
	OutputSize       string `json:"output_size,omitempty"`
	ProcessingTimeMs int64  `json:"processing_time_ms,omitempty"`
	Model            string `json:"model,omitempty"`
	RetryCount       int    `json:"retry_count"`
}

// Generation is one recorded attempt to transform an image with a prompt.
type Generation struct {
	ID                  string             `db:"id" json:"id"`
	UserID              string             `db:"user_id" json:"user_id"`
	OriginalImageURL    *string            `db:"original_image_url" json:"original_image_url,omitempty"`
	OriginalImageKey    string             `db:"original_image_key" json:"-"`
	Prompt              string             `db:"prompt" json:"prompt"`
	PresetUsed          string             `db:"preset_used" json:"preset_used"`
	Status              GenerationStatus   `db:"status" json:"status"`
	GeneratedImageURL   *string            `db:"generated_image_url" json:"generated_image_url,omitempty"`
	IsPlaceholder       bool               `db:"is_placeholder" json:"is_placeholder"`
	ErrorMessage        *string            `db:"error_message" json:"error_message,omitempty"`
	ErrorCode           *string            `db:"error_code" json:"error_code,omitempty"`
	Metadata            GenerationMetadata `db:"metadata" json:"metadata"`
	ProcessingStartTime time.Time          `db:"processing_start_time" json:"processing_start_time"`
	ProcessingEndTime   *time.Time         `db:"processing_end_time" json:"processing_end_time,omitempty"`
	CreatedAt           time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time          `db:"updated_at" json:"updated_at"`
}

// GenerationOutcome carries the fields written by a terminal transition.
type GenerationOutcome struct {
	Status            GenerationStatus
	GeneratedImageURL *string
	IsPlaceholder     bool
	ErrorMessage      *string
	ErrorCode         *string
	Metadata          GenerationMetadata
	EndTime           time.Time
}
