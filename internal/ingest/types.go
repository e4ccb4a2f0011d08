// Package ingest defines core types shared across subsystems.
package ingest

import "time"

// TargetState represents the lifecycle state of a scrape target, persisted
// one row per username.
type TargetState string

// Target state values persisted in the status store.
const (
	StatePending    TargetState = "pending"
	StateInProgress TargetState = "in_progress"
	StateCompleted  TargetState = "completed"
	StateFailed     TargetState = "failed"
)

// TaskStatus represents the lifecycle state of a queued task handle.
type TaskStatus string

// Task status values returned by the poll endpoint.
const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

// Profile is the canonical record for one scraped account.
type Profile struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	FullName      string    `json:"full_name"`
	Biography     string    `json:"biography"`
	ExternalURL   string    `json:"external_url"`
	BioLinks      string    `json:"bio_links"`
	FollowedBy    int64     `json:"followed_by"`
	Follow        int64     `json:"follow"`
	IsVerified    bool      `json:"is_verified"`
	IsPrivate     bool      `json:"is_private"`
	BusinessEmail string    `json:"business_email"`
	BusinessPhone string    `json:"business_phone"`
	CategoryName  string    `json:"category_name"`
	CityName      string    `json:"city_name"`
	StreetAddress string    `json:"street_address"`
	ZipCode       string    `json:"zip_code"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Post is the canonical record for one timeline entry. Media URIs are nil
// when the download failed; a nil URI is persisted as NULL, never as a
// dangling path.
type Post struct {
	PostID               string    `json:"post_id"`
	UserID               string    `json:"user_id"`
	Username             string    `json:"username"`
	TakenAt              time.Time `json:"taken_at"`
	IsVideo              bool      `json:"is_video"`
	VideoViewCount       int64     `json:"video_view_count"`
	LikeCount            int64     `json:"like_count"`
	Caption              string    `json:"caption"`
	AccessibilityCaption string    `json:"accessibility_caption"`
	ImageURI             *string   `json:"image_uri"`
	VideoURI             *string   `json:"video_uri"`
	ScrapedAt            time.Time `json:"scraped_at"`
}

// ScrapeStatus is the per-username status row consumed by API pollers and
// by the queue layer when deciding whether to retry.
type ScrapeStatus struct {
	Username     string      `json:"username"`
	State        TargetState `json:"state"`
	LastAttempt  time.Time   `json:"last_attempt"`
	PostsCount   int         `json:"posts_count"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// ProfileWithPosts is returned by the profile read endpoint.
type ProfileWithPosts struct {
	Profile Profile `json:"profile"`
	Posts   []Post  `json:"posts"`
}

// Stats aggregates ingestion totals across all targets.
type Stats struct {
	TotalProfiles    int64 `json:"total_profiles"`
	TotalPosts       int64 `json:"total_posts"`
	CompletedTargets int64 `json:"completed_targets"`
}

// Task is the handle persisted for each submitted scrape request.
type Task struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Status    TaskStatus `json:"status"`
	Submitted time.Time  `json:"submitted_at"`
	Started   *time.Time `json:"started_at,omitempty"`
	Finished  *time.Time `json:"finished_at,omitempty"`
	Attempts  int        `json:"attempts"`
	Posts     int        `json:"posts_count"`
	ErrorText string     `json:"error_text,omitempty"`
}

// QueueItem wraps a target ready to run.
type QueueItem struct {
	TaskID    string
	Username  string
	Attempt   int
	Submitted int64
}

// CompletionEvent is published after each finished target.
type CompletionEvent struct {
	TaskID     string `json:"task_id"`
	Username   string `json:"username"`
	Status     string `json:"status"`
	PostsCount int    `json:"posts_count"`
	Attempt    int    `json:"attempt"`
	Timestamp  string `json:"timestamp"`
	Error      string `json:"error,omitempty"`
}
