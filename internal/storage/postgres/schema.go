package postgres

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	full_name TEXT NOT NULL DEFAULT '',
	biography TEXT NOT NULL DEFAULT '',
	external_url TEXT NOT NULL DEFAULT '',
	bio_links TEXT NOT NULL DEFAULT '',
	followed_by BIGINT NOT NULL DEFAULT 0,
	follow BIGINT NOT NULL DEFAULT 0,
	is_verified BOOLEAN NOT NULL DEFAULT FALSE,
	is_private BOOLEAN NOT NULL DEFAULT FALSE,
	business_email TEXT NOT NULL DEFAULT '',
	business_phone TEXT NOT NULL DEFAULT '',
	category_name TEXT NOT NULL DEFAULT '',
	city_name TEXT NOT NULL DEFAULT '',
	street_address TEXT NOT NULL DEFAULT '',
	zip_code TEXT NOT NULL DEFAULT '',
	latitude DOUBLE PRECISION NOT NULL DEFAULT 0,
	longitude DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS profiles_username_idx ON profiles (username)`,
	`CREATE TABLE IF NOT EXISTS posts (
	post_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	username TEXT NOT NULL,
	taken_at TIMESTAMPTZ NOT NULL,
	is_video BOOLEAN NOT NULL DEFAULT FALSE,
	video_view_count BIGINT NOT NULL DEFAULT 0,
	like_count BIGINT NOT NULL DEFAULT 0,
	caption TEXT NOT NULL DEFAULT '',
	accessibility_caption TEXT NOT NULL DEFAULT '',
	image_uri TEXT,
	video_uri TEXT,
	scraped_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS posts_user_id_idx ON posts (user_id, taken_at DESC)`,
	`CREATE TABLE IF NOT EXISTS scrape_status (
	username TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	last_attempt TIMESTAMPTZ NOT NULL,
	posts_count INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT ''
)`,
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("store is not configured")
	}
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
