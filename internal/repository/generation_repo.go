package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"imgforge/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrGenerationStateConflict is returned when a transition finds the record in a state
// other than the one it requires (processing for terminal writes, failed for retries).
var ErrGenerationStateConflict = errors.New("generation_state_conflict")

type GenerationRepository interface {
	CreateGeneration(ctx context.Context, g *model.Generation) error
	// UpdateGenerationTerminal moves a processing record to completed or failed.
	UpdateGenerationTerminal(ctx context.Context, id string, out model.GenerationOutcome) (*model.Generation, error)
	// ResetForRetry moves a failed record back to processing and clears its result fields.
	ResetForRetry(ctx context.Context, id, userID string, startedAt time.Time) (*model.Generation, error)
	// FindGeneration returns nil without error when the record does not exist for this user.
	FindGeneration(ctx context.Context, id, userID string) (*model.Generation, error)
	ListGenerationsByUser(ctx context.Context, userID string, limit, offset int) ([]model.Generation, error)
	// FailStaleGenerations resolves records left processing since before cutoff.
	FailStaleGenerations(ctx context.Context, cutoff time.Time, code, message string) (int64, error)
}

type generationRepo struct {
	pool *pgxpool.Pool
}

func NewGenerationRepo(pool *pgxpool.Pool) GenerationRepository {
	return &generationRepo{pool: pool}
}

const generationColumns = `
	id, user_id, original_image_url, original_image_key, prompt, preset_used, status,
	generated_image_url, is_placeholder, error_message, error_code, metadata,
	processing_start_time, processing_end_time, created_at, updated_at`

func (r *generationRepo) CreateGeneration(ctx context.Context, g *model.Generation) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	meta, err := json.Marshal(g.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata for generation %s: %w", g.ID, err)
	}
	q := `
		INSERT INTO generations (id, user_id, original_image_url, original_image_key, prompt, preset_used,
		                         status, metadata, processing_start_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + generationColumns
	row := r.pool.QueryRow(ctx, q,
		g.ID, g.UserID, g.OriginalImageURL, g.OriginalImageKey, g.Prompt, g.PresetUsed,
		string(g.Status), meta, g.ProcessingStartTime,
	)
	stored, err := scanGeneration(row)
	if err != nil {
		return fmt.Errorf("creating generation for user %s: %w", g.UserID, err)
	}
	*g = *stored
	return nil
}

func (r *generationRepo) UpdateGenerationTerminal(ctx context.Context, id string, out model.GenerationOutcome) (*model.Generation, error) {
	if !out.Status.Terminal() {
		return nil, fmt.Errorf("status %q is not terminal", out.Status)
	}
	meta, err := json.Marshal(out.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata for generation %s: %w", id, err)
	}
	q := `
		UPDATE generations
		SET status = $2,
		    generated_image_url = $3,
		    is_placeholder = $4,
		    error_message = $5,
		    error_code = $6,
		    metadata = $7,
		    processing_end_time = $8,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
		RETURNING ` + generationColumns
	g, err := scanGeneration(r.pool.QueryRow(ctx, q,
		id, string(out.Status), out.GeneratedImageURL, out.IsPlaceholder,
		out.ErrorMessage, out.ErrorCode, meta, out.EndTime,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrGenerationStateConflict
	}
	if err != nil {
		return nil, fmt.Errorf("updating generation %s to %s: %w", id, out.Status, err)
	}
	return g, nil
}

func (r *generationRepo) ResetForRetry(ctx context.Context, id, userID string, startedAt time.Time) (*model.Generation, error) {
	q := `
		UPDATE generations
		SET status = 'processing',
		    generated_image_url = NULL,
		    is_placeholder = FALSE,
		    error_message = NULL,
		    error_code = NULL,
		    processing_start_time = $3,
		    processing_end_time = NULL,
		    metadata = jsonb_set(metadata, '{retry_count}', to_jsonb(COALESCE((metadata->>'retry_count')::int, 0) + 1)),
		    updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status = 'failed'
		RETURNING ` + generationColumns
	g, err := scanGeneration(r.pool.QueryRow(ctx, q, id, userID, startedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrGenerationStateConflict
	}
	if err != nil {
		return nil, fmt.Errorf("resetting generation %s for retry: %w", id, err)
	}
	return g, nil
}

func (r *generationRepo) FindGeneration(ctx context.Context, id, userID string) (*model.Generation, error) {
	q := `SELECT ` + generationColumns + ` FROM generations WHERE id = $1 AND user_id = $2`
	g, err := scanGeneration(r.pool.QueryRow(ctx, q, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch generation %s: %w", id, err)
	}
	return g, nil
}

func (r *generationRepo) ListGenerationsByUser(ctx context.Context, userID string, limit, offset int) ([]model.Generation, error) {
	q := `
		SELECT ` + generationColumns + `
		FROM generations
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query generations: %w", err)
	}
	defer rows.Close()

	var gens []model.Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generation row: %w", err)
		}
		gens = append(gens, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return gens, nil
}

func (r *generationRepo) FailStaleGenerations(ctx context.Context, cutoff time.Time, code, message string) (int64, error) {
	const q = `
		UPDATE generations
		SET status = 'failed',
		    error_code = $2,
		    error_message = $3,
		    processing_end_time = NOW(),
		    updated_at = NOW()
		WHERE status = 'processing' AND processing_start_time < $1`
	tag, err := r.pool.Exec(ctx, q, cutoff, code, message)
	if err != nil {
		return 0, fmt.Errorf("failing stale generations: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanGeneration(row pgx.Row) (*model.Generation, error) {
	var (
		g      model.Generation
		status string
		meta   []byte
	)
	if err := row.Scan(
		&g.ID,
		&g.UserID,
		&g.OriginalImageURL,
		&g.OriginalImageKey,
		&g.Prompt,
		&g.PresetUsed,
		&status,
		&g.GeneratedImageURL,
		&g.IsPlaceholder,
		&g.ErrorMessage,
		&g.ErrorCode,
		&meta,
		&g.ProcessingStartTime,
		&g.ProcessingEndTime,
		&g.CreatedAt,
		&g.UpdatedAt,
	); err != nil {
		return nil, err
	}
	g.Status = model.GenerationStatus(status)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &g.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata for generation %s: %w", g.ID, err)
		}
	}
	return &g, nil
}
