// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/macmap/instaingest/internal/ingest"
)

// StoreConfig controls the Postgres connection pool.
type StoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store persists profiles, posts and per-target scrape state in Postgres.
type Store struct {
	pool pgxPool
}

// NewStore creates a Postgres-backed Store using the provided config.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool constructs a Store from an existing pool (primarily for testing).
func NewStoreWithPool(pool pgxPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertProfile inserts the profile row or replaces all columns of an
// existing row with the same id.
func (s *Store) UpsertProfile(ctx context.Context, p ingest.Profile) error {
	if p.ID == "" {
		return fmt.Errorf("profile id is required")
	}
	const query = `
INSERT INTO profiles (
	id,
	username,
	full_name,
	biography,
	external_url,
	bio_links,
	followed_by,
	follow,
	is_verified,
	is_private,
	business_email,
	business_phone,
	category_name,
	city_name,
	street_address,
	zip_code,
	latitude,
	longitude,
	updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19
)
ON CONFLICT (id) DO UPDATE SET
	username = EXCLUDED.username,
	full_name = EXCLUDED.full_name,
	biography = EXCLUDED.biography,
	external_url = EXCLUDED.external_url,
	bio_links = EXCLUDED.bio_links,
	followed_by = EXCLUDED.followed_by,
	follow = EXCLUDED.follow,
	is_verified = EXCLUDED.is_verified,
	is_private = EXCLUDED.is_private,
	business_email = EXCLUDED.business_email,
	business_phone = EXCLUDED.business_phone,
	category_name = EXCLUDED.category_name,
	city_name = EXCLUDED.city_name,
	street_address = EXCLUDED.street_address,
	zip_code = EXCLUDED.zip_code,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	updated_at = EXCLUDED.updated_at`

	args := []any{
		p.ID,
		p.Username,
		p.FullName,
		p.Biography,
		p.ExternalURL,
		p.BioLinks,
		p.FollowedBy,
		p.Follow,
		p.IsVerified,
		p.IsPrivate,
		p.BusinessEmail,
		p.BusinessPhone,
		p.CategoryName,
		p.CityName,
		p.StreetAddress,
		p.ZipCode,
		p.Latitude,
		p.Longitude,
		p.UpdatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// UpsertPost inserts the post row or replaces all columns of an existing
// row with the same post_id.
func (s *Store) UpsertPost(ctx context.Context, p ingest.Post) error {
	if p.PostID == "" {
		return fmt.Errorf("post id is required")
	}
	const query = `
INSERT INTO posts (
	post_id,
	user_id,
	username,
	taken_at,
	is_video,
	video_view_count,
	like_count,
	caption,
	accessibility_caption,
	image_uri,
	video_uri,
	scraped_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
ON CONFLICT (post_id) DO UPDATE SET
	user_id = EXCLUDED.user_id,
	username = EXCLUDED.username,
	taken_at = EXCLUDED.taken_at,
	is_video = EXCLUDED.is_video,
	video_view_count = EXCLUDED.video_view_count,
	like_count = EXCLUDED.like_count,
	caption = EXCLUDED.caption,
	accessibility_caption = EXCLUDED.accessibility_caption,
	image_uri = EXCLUDED.image_uri,
	video_uri = EXCLUDED.video_uri,
	scraped_at = EXCLUDED.scraped_at`

	args := []any{
		p.PostID,
		p.UserID,
		p.Username,
		p.TakenAt,
		p.IsVideo,
		p.VideoViewCount,
		p.LikeCount,
		p.Caption,
		p.AccessibilityCaption,
		p.ImageURI,
		p.VideoURI,
		p.ScrapedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert post: %w", err)
	}
	return nil
}

// GetProfileWithPosts loads a profile by username together with its most
// recently scraped posts, newest first.
func (s *Store) GetProfileWithPosts(ctx context.Context, username string, limit int) (ingest.ProfileWithPosts, error) {
	if limit <= 0 {
		limit = 20
	}
	const profileQuery = `
SELECT id, username, full_name, biography, external_url, bio_links,
	followed_by, follow, is_verified, is_private,
	business_email, business_phone, category_name,
	city_name, street_address, zip_code, latitude, longitude, updated_at
FROM profiles WHERE username = $1`

	var out ingest.ProfileWithPosts
	row := s.pool.QueryRow(ctx, profileQuery, username)
	err := row.Scan(
		&out.Profile.ID,
		&out.Profile.Username,
		&out.Profile.FullName,
		&out.Profile.Biography,
		&out.Profile.ExternalURL,
		&out.Profile.BioLinks,
		&out.Profile.FollowedBy,
		&out.Profile.Follow,
		&out.Profile.IsVerified,
		&out.Profile.IsPrivate,
		&out.Profile.BusinessEmail,
		&out.Profile.BusinessPhone,
		&out.Profile.CategoryName,
		&out.Profile.CityName,
		&out.Profile.StreetAddress,
		&out.Profile.ZipCode,
		&out.Profile.Latitude,
		&out.Profile.Longitude,
		&out.Profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ingest.ProfileWithPosts{}, ingest.ErrNotFound
		}
		return ingest.ProfileWithPosts{}, fmt.Errorf("select profile: %w", err)
	}

	const postsQuery = `
SELECT post_id, user_id, username, taken_at, is_video, video_view_count,
	like_count, caption, accessibility_caption, image_uri, video_uri, scraped_at
FROM posts WHERE user_id = $1
ORDER BY scraped_at DESC, taken_at DESC
LIMIT $2`

	rows, err := s.pool.Query(ctx, postsQuery, out.Profile.ID, limit)
	if err != nil {
		return ingest.ProfileWithPosts{}, fmt.Errorf("select posts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p ingest.Post
		if err := rows.Scan(
			&p.PostID,
			&p.UserID,
			&p.Username,
			&p.TakenAt,
			&p.IsVideo,
			&p.VideoViewCount,
			&p.LikeCount,
			&p.Caption,
			&p.AccessibilityCaption,
			&p.ImageURI,
			&p.VideoURI,
			&p.ScrapedAt,
		); err != nil {
			return ingest.ProfileWithPosts{}, fmt.Errorf("scan post: %w", err)
		}
		out.Posts = append(out.Posts, p)
	}
	if err := rows.Err(); err != nil {
		return ingest.ProfileWithPosts{}, fmt.Errorf("iterate posts: %w", err)
	}
	return out, nil
}

// GetStats returns aggregate row counts for the stats endpoint.
func (s *Store) GetStats(ctx context.Context) (ingest.Stats, error) {
	const query = `
SELECT
	(SELECT COUNT(*) FROM profiles),
	(SELECT COUNT(*) FROM posts),
	(SELECT COUNT(*) FROM scrape_status WHERE state = 'completed')`

	var stats ingest.Stats
	row := s.pool.QueryRow(ctx, query)
	if err := row.Scan(&stats.TotalProfiles, &stats.TotalPosts, &stats.CompletedTargets); err != nil {
		return ingest.Stats{}, fmt.Errorf("select stats: %w", err)
	}
	return stats, nil
}

// SetScrapeStatus records the per-target state transition, replacing any
// previous row for the username.
func (s *Store) SetScrapeStatus(ctx context.Context, username string, state ingest.TargetState, postsCount int, errText string) error {
	if username == "" {
		return fmt.Errorf("username is required")
	}
	const query = `
INSERT INTO scrape_status (username, state, last_attempt, posts_count, error_message)
VALUES ($1,$2,NOW(),$3,$4)
ON CONFLICT (username) DO UPDATE SET
	state = EXCLUDED.state,
	last_attempt = EXCLUDED.last_attempt,
	posts_count = EXCLUDED.posts_count,
	error_message = EXCLUDED.error_message`

	if _, err := s.pool.Exec(ctx, query, username, string(state), postsCount, errText); err != nil {
		return fmt.Errorf("set scrape status: %w", err)
	}
	return nil
}

// GetScrapeStatus loads the current state for a target username.
func (s *Store) GetScrapeStatus(ctx context.Context, username string) (ingest.ScrapeStatus, error) {
	const query = `
SELECT username, state, last_attempt, posts_count, error_message
FROM scrape_status WHERE username = $1`

	var st ingest.ScrapeStatus
	var state string
	row := s.pool.QueryRow(ctx, query, username)
	if err := row.Scan(&st.Username, &state, &st.LastAttempt, &st.PostsCount, &st.ErrorMessage); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ingest.ScrapeStatus{}, ingest.ErrNotFound
		}
		return ingest.ScrapeStatus{}, fmt.Errorf("select scrape status: %w", err)
	}
	st.State = ingest.TargetState(state)
	return st, nil
}
