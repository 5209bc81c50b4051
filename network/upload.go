package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcraft/go-pdfcraft/errs"
	"github.com/pdfcraft/go-pdfcraft/internal"
	"github.com/pdfcraft/go-pdfcraft/network/partuploader"
)

// UploadParams ...
type UploadParams struct {
	FilePath string
	// MaxRetries is the number of attempts per part, 3 when zero.
	MaxRetries int
	// BackoffBase is the first retry delay of a part, 1s when zero.
	BackoffBase time.Duration
	Progress    partuploader.ProgressCallback
	// PartHTTPClient is used for the pre-signed part transfers.
	PartHTTPClient *http.Client
}

// DefaultUploader uploads local files through the multipart API of the service.
type DefaultUploader struct {
	client *Client
	os     internal.OsProxy
}

// NewUploader ...
func NewUploader(client *Client) DefaultUploader {
	return DefaultUploader{client: client, os: internal.RealOS{}}
}

// Upload a local file and return the addressable location of the uploaded object.
func (u DefaultUploader) Upload(ctx context.Context, params UploadParams, logger log.Logger) (string, error) {
	if params.FilePath == "" {
		return "", &errs.InputError{Path: params.FilePath, Err: errors.New("path is empty")}
	}

	info, err := u.os.Stat(params.FilePath)
	if err != nil {
		return "", &errs.InputError{Path: params.FilePath, Err: err}
	}
	if info.IsDir() {
		return "", &errs.InputError{Path: params.FilePath, Err: errors.New("is a directory")}
	}

	file, err := u.os.Open(params.FilePath)
	if err != nil {
		return "", &errs.InputError{Path: params.FilePath, Err: err}
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Errorf("failed to close file: %s", err)
		}
	}()

	contentType, extension, err := detectType(params.FilePath)
	if err != nil {
		return "", &errs.InputError{Path: params.FilePath, Err: err}
	}
	logger.Debugf("Source %s: %s, %s", params.FilePath, contentType, units.HumanSizeWithPrecision(float64(info.Size()), 3))

	logger.Debugf("Get upload plan")
	resp, err := u.client.InitUpload(ctx, filepath.Base(params.FilePath), info.Size(), extension, contentType)
	if err != nil {
		return "", fmt.Errorf("failed to get upload plan: %w", err)
	}
	logger.Debugf("Upload ID: %s", resp.UploadID)

	uploader := partuploader.New(partuploader.Config{
		MaxRetryPerPart: params.MaxRetries,
		BackoffBase:     params.BackoffBase,
		HTTPClient:      params.PartHTTPClient,
	}, logger)
	defer uploader.CloseIdleConnections()

	logger.Debugf("")
	logger.Debugf("Upload parts")
	source := partuploader.Source{Name: params.FilePath, Reader: file, Size: info.Size()}
	result, err := uploader.Upload(ctx, source, resp.plan(), params.Progress)
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	logger.Debugf("Transferred parts: %v", result.Transferred())

	logger.Debugf("")
	logger.Debugf("Finalize upload")
	location, err := u.client.FinalizeUpload(ctx, resp.UploadID)
	if err != nil {
		return "", fmt.Errorf("failed to finalize upload: %w", err)
	}
	logger.Debugf("Upload finalized: %s", location)

	return location, nil
}

func (r InitUploadResponse) plan() partuploader.Plan {
	destinations := make(map[int]partuploader.Destination, len(r.PresignedURLs))
	for part, url := range r.PresignedURLs {
		destinations[part] = partuploader.Destination{Method: http.MethodPut, URL: url}
	}
	return partuploader.Plan{
		UploadID:      r.UploadID,
		PartSize:      r.PartSize,
		TotalParts:    r.TotalParts,
		UploadedParts: r.UploadedParts,
		Destinations:  destinations,
	}
}

// detectType returns the sniffed MIME type and the extension hint of a file.
// The file name wins over the sniffed type for the hint.
func detectType(path string) (string, string, error) {
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return "", "", err
	}

	extension := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if extension == "" {
		extension = strings.TrimPrefix(mime.Extension(), ".")
	}
	return mime.String(), extension, nil
}
