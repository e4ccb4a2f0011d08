package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/macmap/instaingest/internal/ingest"
)

func TestUpsertProfileInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	profile := ingest.Profile{
		ID:         "12345",
		Username:   "acme",
		FullName:   "Acme Corp",
		Biography:  "we make things",
		FollowedBy: 1000,
		Follow:     10,
		IsVerified: true,
		CityName:   "Springfield",
		Latitude:   40.1,
		Longitude:  -88.2,
		UpdatedAt:  now,
	}

	mock.ExpectExec("INSERT INTO profiles").
		WithArgs(
			profile.ID,
			profile.Username,
			profile.FullName,
			profile.Biography,
			profile.ExternalURL,
			profile.BioLinks,
			profile.FollowedBy,
			profile.Follow,
			profile.IsVerified,
			profile.IsPrivate,
			profile.BusinessEmail,
			profile.BusinessPhone,
			profile.CategoryName,
			profile.CityName,
			profile.StreetAddress,
			profile.ZipCode,
			profile.Latitude,
			profile.Longitude,
			profile.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertProfile(context.Background(), profile))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertProfileRequiresID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	err = store.UpsertProfile(context.Background(), ingest.Profile{Username: "acme"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPostInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	image := "gs://bucket/media/12345_777.jpg"
	post := ingest.Post{
		PostID:    "777",
		UserID:    "12345",
		Username:  "acme",
		TakenAt:   now.Add(-time.Hour),
		LikeCount: 42,
		Caption:   "hello",
		ImageURI:  &image,
		ScrapedAt: now,
	}

	mock.ExpectExec("INSERT INTO posts").
		WithArgs(
			post.PostID,
			post.UserID,
			post.Username,
			post.TakenAt,
			post.IsVideo,
			post.VideoViewCount,
			post.LikeCount,
			post.Caption,
			post.AccessibilityCaption,
			post.ImageURI,
			post.VideoURI,
			post.ScrapedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertPost(context.Background(), post))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProfileWithPostsReturnsRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()

	profileCols := []string{
		"id", "username", "full_name", "biography", "external_url", "bio_links",
		"followed_by", "follow", "is_verified", "is_private",
		"business_email", "business_phone", "category_name",
		"city_name", "street_address", "zip_code", "latitude", "longitude", "updated_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM profiles WHERE username").
		WithArgs("acme").
		WillReturnRows(pgxmock.NewRows(profileCols).AddRow(
			"12345", "acme", "Acme Corp", "", "", "",
			int64(1000), int64(10), true, false,
			"", "", "",
			"", "", "", 0.0, 0.0, now,
		))

	postCols := []string{
		"post_id", "user_id", "username", "taken_at", "is_video", "video_view_count",
		"like_count", "caption", "accessibility_caption", "image_uri", "video_uri", "scraped_at",
	}
	image := "gs://bucket/media/12345_777.jpg"
	mock.ExpectQuery("SELECT (.+) FROM posts WHERE user_id").
		WithArgs("12345", 5).
		WillReturnRows(pgxmock.NewRows(postCols).AddRow(
			"777", "12345", "acme", now.Add(-time.Hour), false, int64(0),
			int64(42), "hello", "", &image, (*string)(nil), now,
		))

	got, err := store.GetProfileWithPosts(context.Background(), "acme", 5)
	require.NoError(t, err)
	require.Equal(t, "12345", got.Profile.ID)
	require.Len(t, got.Posts, 1)
	require.Equal(t, "777", got.Posts[0].PostID)
	require.NotNil(t, got.Posts[0].ImageURI)
	require.Nil(t, got.Posts[0].VideoURI)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProfileWithPostsNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	profileCols := []string{
		"id", "username", "full_name", "biography", "external_url", "bio_links",
		"followed_by", "follow", "is_verified", "is_private",
		"business_email", "business_phone", "category_name",
		"city_name", "street_address", "zip_code", "latitude", "longitude", "updated_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM profiles WHERE username").
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows(profileCols))

	_, err = store.GetProfileWithPosts(context.Background(), "ghost", 5)
	require.ErrorIs(t, err, ingest.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStats(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT").
		WillReturnRows(pgxmock.NewRows([]string{"profiles", "posts", "completed"}).
			AddRow(int64(3), int64(40), int64(2)))

	stats, err := store.GetStats(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.TotalProfiles)
	require.Equal(t, int64(40), stats.TotalPosts)
	require.Equal(t, int64(2), stats.CompletedTargets)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetScrapeStatusUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO scrape_status").
		WithArgs("acme", "completed", 12, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.SetScrapeStatus(context.Background(), "acme", ingest.StateCompleted, 12, ""))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetScrapeStatusNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	cols := []string{"username", "state", "last_attempt", "posts_count", "error_message"}
	mock.ExpectQuery("SELECT (.+) FROM scrape_status").
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows(cols))

	_, err = store.GetScrapeStatus(context.Background(), "ghost")
	require.ErrorIs(t, err, ingest.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaAppliesStatements(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	for range schemaStatements {
		mock.ExpectExec("CREATE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
