package ingest

import (
	"context"
	"io"
	"time"
)

// ProfileStore persists canonical profile and post records with
// insert-or-replace semantics keyed by primary key.
type ProfileStore interface {
	UpsertProfile(ctx context.Context, p Profile) error
	UpsertPost(ctx context.Context, p Post) error
	GetProfileWithPosts(ctx context.Context, username string, limit int) (ProfileWithPosts, error)
	GetStats(ctx context.Context) (Stats, error)
}

// StatusStore tracks per-target scrape state. Last write wins; any state
// may overwrite any other since queue redelivery can re-enter in_progress
// after failed.
type StatusStore interface {
	SetScrapeStatus(ctx context.Context, username string, state TargetState, postsCount int, errText string) error
	GetScrapeStatus(ctx context.Context, username string) (ScrapeStatus, error)
}

// TaskStore persists pollable task handles for the API surface.
type TaskStore interface {
	CreateTask(ctx context.Context, task Task) error
	UpdateTask(ctx context.Context, taskID string, status TaskStatus, attempts, posts int, errText string) error
	GetTask(ctx context.Context, taskID string) (Task, error)
}

// BlobStore writes media bytes to durable object storage and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, key string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for scrape tasks.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Relocator moves a remote media resource into durable object storage.
type Relocator interface {
	Relocate(ctx context.Context, sourceURL, destKey string) RelocationResult
}

// RelocationResult reports the outcome of one media relocation. URI is set
// only when OK is true.
type RelocationResult struct {
	OK  bool
	URI string
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// RetryPolicy decides whether the queue layer resubmits a failed target
// and how long to wait before it does.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}
