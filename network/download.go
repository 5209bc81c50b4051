package network

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/melbahja/got"
)

// DownloadParams ...
type DownloadParams struct {
	URL          string
	DownloadPath string
}

// DefaultDownloader fetches conversion results from their download URL.
type DefaultDownloader struct{}

// Download the file behind params.URL to params.DownloadPath and return the path.
func (DefaultDownloader) Download(ctx context.Context, params DownloadParams, logger log.Logger) (string, error) {
	if params.URL == "" {
		return "", fmt.Errorf("download URL is empty")
	}

	if params.DownloadPath == "" {
		return "", fmt.Errorf("download path is empty")
	}

	if dir := filepath.Dir(params.DownloadPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create download dir: %w", err)
		}
	}

	retryableHTTPClient := retryhttp.NewClient(logger)
	retryableHTTPClient.CheckRetry = createCustomRetryFunction(logger)

	logger.Debugf("Download result")
	if err := downloadFile(ctx, retryableHTTPClient.StandardClient(), params.URL, params.DownloadPath); err != nil {
		return "", fmt.Errorf("failed to download result: %w", err)
	}

	return params.DownloadPath, nil
}

func downloadFile(ctx context.Context, client *http.Client, url string, dest string) error {
	downloader := got.New()
	downloader.Client = client

	return downloader.Do(got.NewDownload(ctx, url, dest))
}
