package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/macmap/instaingest/internal/ingest"
)

// Store keeps profiles, posts and scrape state in maps. It backs local
// development runs and the worker tests.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]ingest.Profile
	posts    map[string]ingest.Post
	statuses map[string]ingest.ScrapeStatus
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		profiles: make(map[string]ingest.Profile),
		posts:    make(map[string]ingest.Post),
		statuses: make(map[string]ingest.ScrapeStatus),
	}
}

// UpsertProfile inserts or replaces the profile keyed by its id.
func (s *Store) UpsertProfile(_ context.Context, p ingest.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
	return nil
}

// UpsertPost inserts or replaces the post keyed by its post id.
func (s *Store) UpsertPost(_ context.Context, p ingest.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[p.PostID] = p
	return nil
}

// GetProfileWithPosts returns the profile for a username plus its posts,
// newest first.
func (s *Store) GetProfileWithPosts(_ context.Context, username string, limit int) (ingest.ProfileWithPosts, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out ingest.ProfileWithPosts
	found := false
	for _, p := range s.profiles {
		if p.Username == username {
			out.Profile = p
			found = true
			break
		}
	}
	if !found {
		return ingest.ProfileWithPosts{}, ingest.ErrNotFound
	}
	for _, p := range s.posts {
		if p.UserID == out.Profile.ID {
			out.Posts = append(out.Posts, p)
		}
	}
	sort.Slice(out.Posts, func(i, j int) bool {
		if !out.Posts[i].ScrapedAt.Equal(out.Posts[j].ScrapedAt) {
			return out.Posts[i].ScrapedAt.After(out.Posts[j].ScrapedAt)
		}
		return out.Posts[i].TakenAt.After(out.Posts[j].TakenAt)
	})
	if len(out.Posts) > limit {
		out.Posts = out.Posts[:limit]
	}
	return out, nil
}

// GetStats returns aggregate counts across the maps.
func (s *Store) GetStats(_ context.Context) (ingest.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := ingest.Stats{
		TotalProfiles: int64(len(s.profiles)),
		TotalPosts:    int64(len(s.posts)),
	}
	for _, st := range s.statuses {
		if st.State == ingest.StateCompleted {
			stats.CompletedTargets++
		}
	}
	return stats, nil
}

// SetScrapeStatus records the per-target state transition.
func (s *Store) SetScrapeStatus(_ context.Context, username string, state ingest.TargetState, postsCount int, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[username] = ingest.ScrapeStatus{
		Username:     username,
		State:        state,
		LastAttempt:  time.Now().UTC(),
		PostsCount:   postsCount,
		ErrorMessage: errText,
	}
	return nil
}

// GetScrapeStatus returns the current state for a target username.
func (s *Store) GetScrapeStatus(_ context.Context, username string) (ingest.ScrapeStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[username]
	if !ok {
		return ingest.ScrapeStatus{}, ingest.ErrNotFound
	}
	return st, nil
}
