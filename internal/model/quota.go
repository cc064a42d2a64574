package model

import "time"

// Quota is the generation allowance of one user for one calendar day.
type Quota struct {
	ID               string    `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"user_id"`
	Day              string    `db:"day" json:"day"` // YYYY-MM-DD in the quota time zone
	GenerationsUsed  int       `db:"generations_used" json:"generations_used"`
	GenerationsLimit int       `db:"generations_limit" json:"generations_limit"`
	ResetAt          time.Time `db:"reset_at" json:"reset_at"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// QuotaStatus buckets a quota by how close it is to its limit.
type QuotaStatus string

const (
	QuotaNormal   QuotaStatus = "normal"
	QuotaWarning  QuotaStatus = "warning"
	QuotaExceeded QuotaStatus = "exceeded"
)
