package conversion

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pdfcraft/go-pdfcraft/network"
)

const defaultResultName = "result.zip"

// DownloadResult fetches the file behind downloadURL to dest and returns its path.
// When dest is an existing directory or ends with a separator, the file keeps its remote name.
func (c *Client) DownloadResult(ctx context.Context, downloadURL, dest string) (string, error) {
	if isDirectory(dest) {
		dest = filepath.Join(dest, resultFileName(downloadURL))
	}
	return c.downloader.Download(ctx, network.DownloadParams{URL: downloadURL, DownloadPath: dest}, c.logger)
}

// ExtractResult unpacks a downloaded result bundle into dir and returns the extracted files.
func (c *Client) ExtractResult(archivePath, dir string) ([]string, error) {
	files, err := c.extractor.Extract(archivePath, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to extract result: %w", err)
	}
	c.logger.Debugf("Extracted %d file(s) to %s", len(files), dir)
	return files, nil
}

// ExportResult uploads a local result file to an s3:// location.
func (c *Client) ExportResult(ctx context.Context, filePath, s3URL string) (string, error) {
	location, err := c.export(ctx, filePath, s3URL, c.s3, c.logger)
	if err != nil {
		return "", fmt.Errorf("failed to export result: %w", err)
	}
	return location, nil
}

func isDirectory(dest string) bool {
	if dest == "" || strings.HasSuffix(dest, "/") || strings.HasSuffix(dest, string(filepath.Separator)) {
		return true
	}
	info, err := os.Stat(dest)
	return err == nil && info.IsDir()
}

func resultFileName(downloadURL string) string {
	u, err := url.Parse(downloadURL)
	if err != nil {
		return defaultResultName
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return defaultResultName
	}
	return name
}
