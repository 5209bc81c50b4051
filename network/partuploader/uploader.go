package partuploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/pdfcraft/go-pdfcraft/errs"
	"github.com/pdfcraft/go-pdfcraft/internal"
)

// Uploader transfers the parts of a plan one after the other, with retry.
type Uploader struct {
	config     Config
	httpClient *http.Client
	logger     log.Logger
	stats      *Stats
	sleep      internal.SleepFunc
}

// New creates a new Uploader with the given configuration.
func New(config Config, logger log.Logger) *Uploader {
	config = config.withDefaults()

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}
	if logger == nil {
		logger = log.NewLogger()
	}

	return &Uploader{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
		stats:      NewStats(),
		sleep:      internal.Sleep,
	}
}

// Upload reads the source part by part and sends every part the plan does not
// already mark as uploaded to its destination. onProgress may be nil.
func (u *Uploader) Upload(ctx context.Context, src Source, plan Plan, onProgress ProgressCallback) (*UploadResult, error) {
	if err := plan.Validate(src.Size); err != nil {
		return nil, &errs.ProtocolError{Op: "plan", Message: err.Error()}
	}

	done := plan.uploadedSet()
	reader := NewSizedChunkReader(src.Reader, src.Size)
	result := &UploadResult{Parts: make([]PartResult, 0, plan.TotalParts)}

	u.logger.Debugf("Uploading %d parts, %s each (%d already uploaded)",
		plan.TotalParts, units.HumanSize(float64(plan.PartSize)), len(done))

	var uploadedBytes int64
	for part := 1; part <= plan.TotalParts; part++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("upload cancelled before part %d: %w", part, err)
		}

		if done[part] {
			if _, err := reader.Skip(plan.PartSize); err != nil {
				return nil, &errs.InputError{Path: src.Name, Err: err}
			}
			uploadedBytes = min(uploadedBytes+plan.PartSize, src.Size)
			result.Parts = append(result.Parts, PartResult{Part: part, Size: plan.PartSize, Skipped: true})
			u.logger.Debugf("Part %d/%d already uploaded, skipping", part, plan.TotalParts)
			report(onProgress, uploadedBytes, src.Size, part, plan.TotalParts)
			continue
		}

		data, err := reader.Next(plan.PartSize)
		if errors.Is(err, io.EOF) && src.Size == 0 {
			data, err = []byte{}, nil
		}
		if errors.Is(err, io.EOF) {
			return nil, &errs.ProtocolError{
				Op:      "plan",
				Message: fmt.Sprintf("plan expects part %d but the source ended after %d bytes", part, reader.Offset()),
			}
		}
		if err != nil {
			return nil, &errs.InputError{Path: src.Name, Err: err}
		}

		etag, attempts, err := u.uploadPartWithRetry(ctx, data, plan.Destinations[part], part, plan.TotalParts)
		if err != nil {
			return nil, &errs.TransferError{UploadID: plan.UploadID, Part: part, Attempts: attempts, Err: err}
		}

		uploadedBytes += int64(len(data))
		result.Parts = append(result.Parts, PartResult{Part: part, Size: int64(len(data)), ETag: etag})
		report(onProgress, uploadedBytes, src.Size, part, plan.TotalParts)
	}

	if reader.Offset() != src.Size {
		return nil, &errs.ProtocolError{
			Op:      "plan",
			Message: fmt.Sprintf("plan covered %d of %d bytes", reader.Offset(), src.Size),
		}
	}

	result.UploadedBytes = uploadedBytes
	if u.stats.FinishedCount() > 0 {
		u.logger.Debugf("Transferred %d parts, avg %v per part, %s/s",
			u.stats.FinishedCount(), u.stats.Average().Round(time.Millisecond),
			units.HumanSize(u.stats.BytesPerSecond()))
	}

	return result, nil
}

// Stats returns the upload statistics.
func (u *Uploader) Stats() *Stats {
	return u.stats
}

// CloseIdleConnections closes idle connections in the HTTP client.
func (u *Uploader) CloseIdleConnections() {
	if transport, ok := u.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

func report(onProgress ProgressCallback, uploaded, total int64, part, totalParts int) {
	if onProgress == nil {
		return
	}

	percentage := 100.0
	if total > 0 {
		percentage = float64(uploaded) * 100 / float64(total)
	}

	onProgress(Progress{
		UploadedBytes: uploaded,
		TotalBytes:    total,
		CurrentPart:   part,
		TotalParts:    totalParts,
		Percentage:    percentage,
	})
}

// uploadPartWithRetry returns the ETag and the number of attempts made.
func (u *Uploader) uploadPartWithRetry(ctx context.Context, data []byte, dest Destination, part, totalParts int) (string, int, error) {
	var uploadErr error

	for attempt := 0; attempt < u.config.MaxRetryPerPart; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", attempt, fmt.Errorf("part upload cancelled: %w", err)
		}

		u.logger.Debugf("Uploading part %d/%d (attempt %d/%d) [finished=%d] [avg=%v]",
			part, totalParts, attempt+1, u.config.MaxRetryPerPart,
			u.stats.FinishedCount(), u.stats.Average().Round(time.Millisecond))

		start := time.Now()
		etag, err := u.uploadPart(ctx, data, dest)
		if err == nil {
			took := time.Since(start)
			u.stats.Update(took, int64(len(data)))
			u.logger.Debugf("Part %d uploaded in %v, ETag: %s", part, took.Round(time.Millisecond), etag)
			return etag, attempt + 1, nil
		}
		uploadErr = err

		u.logger.Warnf("Part %d attempt %d failed: %v", part, attempt+1, err)

		if attempt == u.config.MaxRetryPerPart-1 {
			break
		}

		backoff := u.config.Backoff(attempt)
		u.logger.Debugf("Retrying part %d after %v", part, backoff)
		if err := u.sleep(ctx, backoff); err != nil {
			return "", attempt + 1, fmt.Errorf("part upload cancelled: %w", err)
		}
	}

	return "", u.config.MaxRetryPerPart, uploadErr
}

func (u *Uploader) uploadPart(ctx context.Context, data []byte, dest Destination) (string, error) {
	method := dest.Method
	if method == "" {
		method = http.MethodPut
	}

	req, err := http.NewRequestWithContext(ctx, method, dest.URL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	for k, v := range dest.Headers {
		req.Header.Set(k, v)
	}
	req.ContentLength = int64(len(data))

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errorBody := make([]byte, 1024)
		n, _ := io.ReadAtLeast(resp.Body, errorBody, 1)
		return "", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(errorBody[:n]))
	}

	return resp.Header.Get("ETag"), nil
}
