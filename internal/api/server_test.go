package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/macmap/instaingest/internal/clock/system"
	"github.com/macmap/instaingest/internal/config"
	"github.com/macmap/instaingest/internal/dispatcher"
	"github.com/macmap/instaingest/internal/id/uuid"
	"github.com/macmap/instaingest/internal/ingest"
	queuememory "github.com/macmap/instaingest/internal/queue/memory"
	storememory "github.com/macmap/instaingest/internal/storage/memory"
	"github.com/macmap/instaingest/internal/tasks"
	"github.com/macmap/instaingest/internal/telemetry"
)

type testEnv struct {
	server *Server
	store  *storememory.Store
	tasks  *tasks.Store
	queue  *queuememory.Queue
}

func newTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	if cfg.Ingest.ProfilePostsDefault == 0 {
		cfg.Ingest.ProfilePostsDefault = 20
	}
	store := storememory.NewStore()
	taskStore := tasks.NewStore()
	queue := queuememory.NewQueue(16)
	dispatch := dispatcher.New(queue, nil)

	server := NewServer(
		store,
		store,
		taskStore,
		dispatch,
		uuid.New(),
		system.New(),
		telemetry.New(),
		cfg,
		zap.NewNop(),
	)
	return &testEnv{server: server, store: store, tasks: taskStore, queue: queue}
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSubmitScrapeQueuesTarget(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	rec := postJSON(t, env.server.Handler(), "/v1/scrape", map[string]string{"username": "acme"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["task_id"])
	require.Equal(t, "queued", resp["status"])

	task, err := env.tasks.GetTask(context.Background(), resp["task_id"])
	require.NoError(t, err)
	require.Equal(t, ingest.TaskQueued, task.Status)
	require.Equal(t, "acme", task.Username)

	status, err := env.store.GetScrapeStatus(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, ingest.StatePending, status.State)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	item, err := env.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, resp["task_id"], item.TaskID)
	require.Equal(t, 1, item.Attempt)
}

func TestSubmitScrapeRejectsBadInput(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})

	rec := postJSON(t, env.server.Handler(), "/v1/scrape", map[string]string{"username": "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/scrape", bytes.NewReader([]byte("{not json")))
	raw := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(raw, req)
	require.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestGetTask(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	rec := postJSON(t, env.server.Handler(), "/v1/scrape", map[string]string{"username": "acme"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/"+resp["task_id"], nil)
	got := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(got, req)
	require.Equal(t, http.StatusOK, got.Code)

	var task ingest.Task
	require.NoError(t, json.Unmarshal(got.Body.Bytes(), &task))
	require.Equal(t, "acme", task.Username)

	missing := httptest.NewRequest(http.MethodGet, "/v1/tasks/nope", nil)
	notFound := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(notFound, missing)
	require.Equal(t, http.StatusNotFound, notFound.Code)
}

type failingTaskStore struct {
	err error
}

func (s *failingTaskStore) CreateTask(context.Context, ingest.Task) error { return s.err }

func (s *failingTaskStore) UpdateTask(context.Context, string, ingest.TaskStatus, int, int, string) error {
	return s.err
}

func (s *failingTaskStore) GetTask(context.Context, string) (ingest.Task, error) {
	return ingest.Task{}, s.err
}

func TestGetTaskDistinguishesStoreFailures(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Ingest.ProfilePostsDefault = 20
	store := storememory.NewStore()
	broken := &failingTaskStore{err: errors.New("connection reset")}
	server := NewServer(
		store,
		store,
		broken,
		dispatcher.New(queuememory.NewQueue(1), nil),
		uuid.New(),
		system.New(),
		telemetry.New(),
		cfg,
		zap.NewNop(),
	)

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/abc", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	broken.err = ingest.ErrNotFound
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLookupUserReturnsProfileWithPosts(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()

	require.NoError(t, env.store.UpsertProfile(ctx, ingest.Profile{ID: "1", Username: "acme"}))
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, env.store.UpsertPost(ctx, ingest.Post{
			PostID:  id,
			UserID:  "1",
			TakenAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	rec := postJSON(t, env.server.Handler(), "/v1/users/lookup", map[string]any{"username": "acme", "limit": 2})
	require.Equal(t, http.StatusOK, rec.Code)

	var result ingest.ProfileWithPosts
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, "1", result.Profile.ID)
	require.Len(t, result.Posts, 2)
	require.Equal(t, "c", result.Posts[0].PostID)

	missing := postJSON(t, env.server.Handler(), "/v1/users/lookup", map[string]string{"username": "ghost"})
	require.Equal(t, http.StatusNotFound, missing.Code)
}

func TestGetStats(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	ctx := context.Background()
	require.NoError(t, env.store.UpsertProfile(ctx, ingest.Profile{ID: "1", Username: "acme"}))
	require.NoError(t, env.store.UpsertPost(ctx, ingest.Post{PostID: "a", UserID: "1"}))
	require.NoError(t, env.store.SetScrapeStatus(ctx, "acme", ingest.StateCompleted, 1, ""))

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats ingest.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, int64(1), stats.TotalProfiles)
	require.Equal(t, int64(1), stats.TotalPosts)
	require.Equal(t, int64(1), stats.CompletedTargets)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		env.server.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestAPIKeyGuardsV1Routes(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "secret"
	env := newTestEnv(t, cfg)

	rec := postJSON(t, env.server.Handler(), "/v1/scrape", map[string]string{"username": "acme"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	body, err := json.Marshal(map[string]string{"username": "acme"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/scrape", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "secret")
	authed := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(authed, req)
	require.Equal(t, http.StatusAccepted, authed.Code)

	health := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	open := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(open, health)
	require.Equal(t, http.StatusOK, open.Code)
}
