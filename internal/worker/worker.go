// Package worker implements the ingest pipeline execution loop.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/macmap/instaingest/internal/fetch"
	"github.com/macmap/instaingest/internal/ingest"
	"github.com/macmap/instaingest/internal/source"
	"github.com/macmap/instaingest/internal/telemetry"
)

// Config controls Worker behavior.
type Config struct {
	BaseURL     string
	MediaPrefix string
	Topic       string
}

// Fetcher retrieves a document from the source.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts fetch.Options) (*fetch.Response, error)
}

// Worker consumes queue items and executes the profile ingest pipeline.
type Worker struct {
	queue     ingest.Queue
	tasks     ingest.TaskStore
	statuses  ingest.StatusStore
	profiles  ingest.ProfileStore
	fetcher   Fetcher
	relocator ingest.Relocator
	publisher ingest.Publisher
	clock     ingest.Clock
	retry     ingest.RetryPolicy
	metrics   *telemetry.Metrics
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	queue ingest.Queue,
	tasks ingest.TaskStore,
	statuses ingest.StatusStore,
	profiles ingest.ProfileStore,
	fetcher Fetcher,
	relocator ingest.Relocator,
	publisher ingest.Publisher,
	clock ingest.Clock,
	retry ingest.RetryPolicy,
	metrics *telemetry.Metrics,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.MediaPrefix == "" {
		cfg.MediaPrefix = "media"
	}
	return &Worker{
		queue:     queue,
		tasks:     tasks,
		statuses:  statuses,
		profiles:  profiles,
		fetcher:   fetcher,
		relocator: relocator,
		publisher: publisher,
		clock:     clock,
		retry:     retry,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued target",
			zap.String("task_id", item.TaskID),
			zap.String("username", item.Username),
			zap.Int("attempt", item.Attempt),
		)
		w.processTarget(ctx, item)
	}
}

func (w *Worker) processTarget(ctx context.Context, item ingest.QueueItem) {
	if err := w.tasks.UpdateTask(ctx, item.TaskID, ingest.TaskRunning, item.Attempt, 0, ""); err != nil {
		w.logger.Error("update task failed", zap.String("task_id", item.TaskID), zap.Error(err))
		return
	}
	if err := w.statuses.SetScrapeStatus(ctx, item.Username, ingest.StateInProgress, 0, ""); err != nil {
		w.logger.Error("set scrape status failed", zap.String("username", item.Username), zap.Error(err))
	}

	postsStored, err := w.ingestProfile(ctx, item)
	if err != nil {
		w.failTarget(ctx, item, err)
		return
	}

	if err := w.statuses.SetScrapeStatus(ctx, item.Username, ingest.StateCompleted, postsStored, ""); err != nil {
		w.logger.Error("set scrape status failed", zap.String("username", item.Username), zap.Error(err))
	}
	if err := w.tasks.UpdateTask(ctx, item.TaskID, ingest.TaskSucceeded, item.Attempt, postsStored, ""); err != nil {
		w.logger.Error("update task failed", zap.String("task_id", item.TaskID), zap.Error(err))
	}
	w.metrics.TargetProcessed("completed")
	w.publishCompletion(ctx, item, string(ingest.TaskSucceeded), postsStored, "")
	w.logger.Info("target completed",
		zap.String("task_id", item.TaskID),
		zap.String("username", item.Username),
		zap.Int("posts", postsStored),
	)
}

// ingestProfile fetches the profile document, stores the profile row, then
// processes each post. It returns the number of posts that were stored.
func (w *Worker) ingestProfile(ctx context.Context, item ingest.QueueItem) (int, error) {
	w.metrics.FetchAttempt()
	resp, err := w.fetcher.Fetch(ctx, source.ProfileURL(w.cfg.BaseURL, item.Username), fetch.Options{})
	if err != nil {
		return 0, ingest.Retryable(fmt.Errorf("fetch profile: %w", err))
	}

	var doc source.ProfileResponse
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return 0, ingest.Fatal(fmt.Errorf("decode profile payload: %w", err))
	}
	if doc.Data.User == nil {
		return 0, ingest.Fatal(fmt.Errorf("profile payload has no user document"))
	}

	now := w.clock.Now()
	profile := source.NormalizeProfile(doc.Data.User, now)
	if err := w.profiles.UpsertProfile(ctx, profile); err != nil {
		return 0, ingest.Retryable(fmt.Errorf("upsert profile: %w", err))
	}

	edges := doc.Data.User.Timeline.Edges
	stored := 0
	for _, edge := range edges {
		if err := w.ingestPost(ctx, edge, profile, now); err != nil {
			w.logger.Warn("post ingest failed",
				zap.String("username", item.Username),
				zap.String("post_id", edge.Node.ID),
				zap.Error(err),
			)
			continue
		}
		stored++
		w.metrics.PostIngested()
	}

	// A profile with no timeline posts still counts as a successful scrape.
	if len(edges) > 0 && stored == 0 {
		return 0, ingest.Retryable(fmt.Errorf("no posts stored out of %d", len(edges)))
	}
	return stored, nil
}

// ingestPost relocates the post media and stores the post row. Media
// relocation failures leave the matching URI nil rather than failing the post.
func (w *Worker) ingestPost(ctx context.Context, edge source.PostEdge, profile ingest.Profile, now time.Time) error {
	post := source.NormalizePost(edge, profile, now)

	if edge.Node.IsVideo && edge.Node.VideoURL != "" {
		result := w.relocator.Relocate(ctx, edge.Node.VideoURL, w.mediaKey(profile.ID, post.PostID, ".mp4"))
		if result.OK {
			post.VideoURI = &result.URI
			w.metrics.MediaRelocated("ok")
		} else {
			w.metrics.MediaRelocated("failed")
		}
	}
	if edge.Node.DisplayURL != "" {
		result := w.relocator.Relocate(ctx, edge.Node.DisplayURL, w.mediaKey(profile.ID, post.PostID, ".jpg"))
		if result.OK {
			post.ImageURI = &result.URI
			w.metrics.MediaRelocated("ok")
		} else {
			w.metrics.MediaRelocated("failed")
		}
	}

	if err := w.profiles.UpsertPost(ctx, post); err != nil {
		return fmt.Errorf("upsert post: %w", err)
	}
	return nil
}

func (w *Worker) mediaKey(userID, postID, ext string) string {
	prefix := strings.Trim(w.cfg.MediaPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s_%s%s", userID, postID, ext)
	}
	return fmt.Sprintf("%s/%s_%s%s", prefix, userID, postID, ext)
}

// failTarget records the failure and re-enqueues the whole target when the
// retry policy allows another attempt.
func (w *Worker) failTarget(ctx context.Context, item ingest.QueueItem, cause error) {
	errText := cause.Error()
	if err := w.statuses.SetScrapeStatus(ctx, item.Username, ingest.StateFailed, 0, errText); err != nil {
		w.logger.Error("set scrape status failed", zap.String("username", item.Username), zap.Error(err))
	}

	if w.retry != nil && w.retry.ShouldRetry(cause, item.Attempt) {
		w.logger.Warn("target failed, scheduling retry",
			zap.String("task_id", item.TaskID),
			zap.String("username", item.Username),
			zap.Int("attempt", item.Attempt),
			zap.Error(cause),
		)
		if err := w.tasks.UpdateTask(ctx, item.TaskID, ingest.TaskQueued, item.Attempt, 0, errText); err != nil {
			w.logger.Error("update task failed", zap.String("task_id", item.TaskID), zap.Error(err))
		}
		w.scheduleRetry(ctx, item)
		return
	}

	if err := w.tasks.UpdateTask(ctx, item.TaskID, ingest.TaskFailed, item.Attempt, 0, errText); err != nil {
		w.logger.Error("update task failed", zap.String("task_id", item.TaskID), zap.Error(err))
	}
	w.metrics.TargetProcessed("failed")
	w.publishCompletion(ctx, item, string(ingest.TaskFailed), 0, errText)
	w.logger.Error("target failed permanently",
		zap.String("task_id", item.TaskID),
		zap.String("username", item.Username),
		zap.Int("attempt", item.Attempt),
		zap.Error(cause),
	)
}

func (w *Worker) scheduleRetry(ctx context.Context, item ingest.QueueItem) {
	next := ingest.QueueItem{
		TaskID:    item.TaskID,
		Username:  item.Username,
		Attempt:   item.Attempt + 1,
		Submitted: item.Submitted,
	}
	delay := w.retry.Backoff(item.Attempt)
	if delay <= 0 {
		if err := w.queue.Enqueue(ctx, next); err != nil {
			w.logger.Error("retry enqueue failed", zap.String("task_id", item.TaskID), zap.Error(err))
		}
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if err := w.queue.Enqueue(ctx, next); err != nil {
			w.logger.Error("retry enqueue failed", zap.String("task_id", next.TaskID), zap.Error(err))
		}
	}()
}

func (w *Worker) publishCompletion(ctx context.Context, item ingest.QueueItem, status string, posts int, errText string) {
	if w.publisher == nil || w.cfg.Topic == "" {
		return
	}
	event := ingest.CompletionEvent{
		TaskID:     item.TaskID,
		Username:   item.Username,
		Status:     status,
		PostsCount: posts,
		Attempt:    item.Attempt,
		Timestamp:  w.clock.Now().Format(time.RFC3339),
		Error:      errText,
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, event); err != nil {
		w.logger.Error("publish completion failed", zap.String("task_id", item.TaskID), zap.Error(err))
	}
}
