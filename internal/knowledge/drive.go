package knowledge

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/vanilka-ai/bento-assistant/pkg/logger"
)

// DriveFetcher loads the knowledge document from a Google Drive file.
// Google Docs are exported as text/plain; other files are downloaded
// directly. Successful fetches are written through to a local cache
// file, and the cache is served when the remote fetch fails.
type DriveFetcher struct {
	service   *drive.Service
	fileID    string
	cachePath string
	logger    *logger.Logger
}

// NewDriveFetcher creates a fetcher for the given Drive file using a
// service-account credentials file.
func NewDriveFetcher(ctx context.Context, fileID, credentialsFile, cachePath string, log *logger.Logger) (*DriveFetcher, error) {
	service, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &DriveFetcher{
		service:   service,
		fileID:    fileID,
		cachePath: cachePath,
		logger:    log,
	}, nil
}

// Fetch downloads the document text, falling back to the local cache
// when Drive is unreachable.
func (f *DriveFetcher) Fetch(ctx context.Context) (string, error) {
	content, err := f.download(ctx)
	if err != nil {
		f.logger.Warn("drive fetch failed, trying cache", zap.Error(err))
		return f.readCache(err)
	}

	f.writeCache(content)
	return content, nil
}

func (f *DriveFetcher) download(ctx context.Context) (string, error) {
	// Export first, assuming a Google Doc; fall back to a direct
	// download for plain files.
	resp, err := f.service.Files.Export(f.fileID, "text/plain").Context(ctx).Download()
	if err != nil {
		f.logger.Debug("drive export failed, trying direct download", zap.Error(err))
		resp, err = f.service.Files.Get(f.fileID).Context(ctx).Download()
		if err != nil {
			return "", fmt.Errorf("download file %s: %w", f.fileID, err)
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read file body: %w", err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("file %s is not valid UTF-8 text", f.fileID)
	}

	return string(data), nil
}

func (f *DriveFetcher) writeCache(content string) {
	if f.cachePath == "" {
		return
	}
	if dir := filepath.Dir(f.cachePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			f.logger.Warn("failed to create cache dir", zap.Error(err))
			return
		}
	}
	if err := os.WriteFile(f.cachePath, []byte(content), 0o644); err != nil {
		f.logger.Warn("failed to write knowledge cache", zap.Error(err))
	}
}

func (f *DriveFetcher) readCache(fetchErr error) (string, error) {
	if f.cachePath == "" {
		return "", fetchErr
	}
	data, err := os.ReadFile(f.cachePath)
	if err != nil {
		return "", fmt.Errorf("fetch failed (%v) and no cache: %w", fetchErr, err)
	}
	f.logger.Info("knowledge served from local cache", zap.Int("bytes", len(data)))
	return string(data), nil
}
