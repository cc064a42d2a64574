package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS user_profiles (
	user_id    TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	avatar_url TEXT NOT NULL DEFAULT '',
	tier       TEXT NOT NULL DEFAULT 'free' CHECK (tier IN ('free', 'paid')),
	is_active  BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS generation_quotas (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL REFERENCES user_profiles(user_id),
	day               DATE NOT NULL,
	generations_used  INTEGER NOT NULL DEFAULT 0 CHECK (generations_used >= 0),
	generations_limit INTEGER NOT NULL CHECK (generations_limit >= 0),
	reset_at          TIMESTAMPTZ NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (user_id, day)
);
CREATE INDEX IF NOT EXISTS generation_quotas_reset_at_idx ON generation_quotas (reset_at);

CREATE TABLE IF NOT EXISTS generations (
	id                    TEXT PRIMARY KEY,
	user_id               TEXT NOT NULL REFERENCES user_profiles(user_id),
	original_image_url    TEXT,
	original_image_key    TEXT NOT NULL DEFAULT '',
	prompt                TEXT NOT NULL CHECK (char_length(prompt) > 0),
	preset_used           TEXT NOT NULL DEFAULT 'custom',
	status                TEXT NOT NULL CHECK (status IN ('processing', 'completed', 'failed')),
	generated_image_url   TEXT,
	is_placeholder        BOOLEAN NOT NULL DEFAULT FALSE,
	error_message         TEXT,
	error_code            TEXT,
	metadata              JSONB NOT NULL DEFAULT '{}'::jsonb,
	processing_start_time TIMESTAMPTZ NOT NULL,
	processing_end_time   TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK ((status = 'processing') = (processing_end_time IS NULL))
);
CREATE INDEX IF NOT EXISTS generations_user_created_idx ON generations (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS generations_processing_idx ON generations (processing_start_time) WHERE status = 'processing';
`

// EnsureSchema creates the tables used by the repositories if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
