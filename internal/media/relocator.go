// Package media moves remote binary resources into durable object storage
// via a local staging file.
package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/macmap/instaingest/internal/fetch"
	"github.com/macmap/instaingest/internal/ingest"
)

// Fetcher is the subset of the fetch client the relocator needs.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts fetch.Options) (*fetch.Response, error)
}

// Relocator stream-downloads a resource to a staging file, uploads the
// staged bytes to the blob store, and removes the staging file on every
// exit path so repeated retries cannot grow the disk.
type Relocator struct {
	fetcher    Fetcher
	blobStore  ingest.BlobStore
	stagingDir string
	logger     *zap.Logger
}

// New constructs a Relocator.
func New(fetcher Fetcher, blobStore ingest.BlobStore, stagingDir string, logger *zap.Logger) *Relocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stagingDir == "" {
		stagingDir = "media"
	}
	return &Relocator{
		fetcher:    fetcher,
		blobStore:  blobStore,
		stagingDir: stagingDir,
		logger:     logger,
	}
}

// Relocate downloads sourceURL and uploads it under destKey. Retry of the
// download itself already happened inside the fetch client; a false result
// here means the caller must persist a null media reference.
func (r *Relocator) Relocate(ctx context.Context, sourceURL, destKey string) ingest.RelocationResult {
	resp, err := r.fetcher.Fetch(ctx, sourceURL, fetch.Options{Stream: true})
	if err != nil {
		r.logger.Warn("media download failed",
			zap.String("url", sourceURL),
			zap.String("key", destKey),
			zap.Error(err),
		)
		return ingest.RelocationResult{}
	}

	uri, err := r.stageAndUpload(ctx, resp.Stream, destKey)
	if err != nil {
		r.logger.Warn("media relocation failed",
			zap.String("url", sourceURL),
			zap.String("key", destKey),
			zap.Error(err),
		)
		return ingest.RelocationResult{}
	}
	return ingest.RelocationResult{OK: true, URI: uri}
}

// stageAndUpload owns the staging file lifecycle: it is removed before
// return whether the upload succeeds or not.
func (r *Relocator) stageAndUpload(ctx context.Context, stream io.ReadCloser, destKey string) (string, error) {
	defer func() {
		if err := stream.Close(); err != nil {
			r.logger.Warn("close download stream", zap.Error(err))
		}
	}()

	if err := os.MkdirAll(r.stagingDir, 0o750); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}

	staged, err := os.CreateTemp(r.stagingDir, "stage-*")
	if err != nil {
		return "", fmt.Errorf("create staging file: %w", err)
	}
	stagedPath := staged.Name()
	defer func() {
		if err := os.Remove(stagedPath); err != nil && !os.IsNotExist(err) {
			r.logger.Warn("remove staging file", zap.String("path", stagedPath), zap.Error(err))
		}
	}()
	defer func() {
		if err := staged.Close(); err != nil {
			r.logger.Warn("close staging file", zap.String("path", stagedPath), zap.Error(err))
		}
	}()

	if _, err := io.Copy(staged, stream); err != nil {
		return "", fmt.Errorf("write staging file: %w", err)
	}
	if _, err := staged.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind staging file: %w", err)
	}

	uri, err := r.blobStore.PutObject(ctx, destKey, contentTypeForKey(destKey), staged)
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return uri, nil
}

func contentTypeForKey(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".mp4":
		return "video/mp4"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
