package conversion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pdfcraft/go-pdfcraft/errs"
	"github.com/pdfcraft/go-pdfcraft/network"
	"github.com/pdfcraft/go-pdfcraft/network/partuploader"
	"github.com/pdfcraft/go-pdfcraft/poll"
)

// Source kinds, as reported to the tracker.
const (
	sourceLocal  = "local"
	sourceS3     = "s3"
	sourceRemote = "url"
)

// Submit starts a conversion of the PDF behind pdfURL and returns the session id.
func (c *Client) Submit(ctx context.Context, pdfURL string, opts SubmitOptions) (string, error) {
	if pdfURL == "" {
		return "", fmt.Errorf("PDF URL is empty")
	}
	if err := opts.validate(); err != nil {
		return "", err
	}
	opts = opts.withDefaults()

	resp, err := c.api.SubmitConversion(ctx, string(opts.Format), network.SubmitRequest{
		PDFURL:            pdfURL,
		Model:             opts.Model,
		IncludesFootnotes: opts.IncludesFootnotes,
		IgnorePDFErrors:   !opts.FailOnPDFErrors,
		IgnoreOCRErrors:   !opts.FailOnOCRErrors,
	})
	if err != nil {
		return "", fmt.Errorf("failed to submit conversion: %w", err)
	}
	if !resp.Success || resp.SessionID == "" {
		reason := resp.Error
		if reason == "" {
			reason = "unknown error"
		}
		return "", &errs.ProtocolError{Op: "submit", Message: "failed to submit task: " + reason}
	}

	c.logger.Debugf("Submitted %s conversion of %s: %s", opts.Format, pdfURL, resp.SessionID)
	return resp.SessionID, nil
}

// Result queries the current state of a job once.
func (c *Client) Result(ctx context.Context, sessionID string, format FormatType) (Status, error) {
	if sessionID == "" {
		return Status{}, fmt.Errorf("session ID is empty")
	}
	if format == "" {
		format = FormatMarkdown
	}

	resp, err := c.api.ConversionResult(ctx, string(format), sessionID)
	if err != nil {
		return Status{}, err
	}

	status := Status{State: JobState(resp.State), Error: resp.Error}
	if resp.Data != nil {
		status.DownloadURL = resp.Data.DownloadURL
	}
	return status, nil
}

// WaitForCompletion polls the job until it completes and returns its download URL.
func (c *Client) WaitForCompletion(ctx context.Context, sessionID string, format FormatType, config poll.Config) (string, error) {
	querier := poll.StatusQuerierFunc(func(ctx context.Context, jobID string) (poll.Status, error) {
		status, err := c.Result(ctx, jobID, format)
		if err != nil {
			return poll.Status{}, err
		}
		return poll.Status{State: string(status.State), DownloadURL: status.DownloadURL, Error: status.Error}, nil
	})

	poller, err := poll.New(config, querier, c.logger)
	if err != nil {
		return "", err
	}

	start := time.Now()
	downloadURL, err := poller.Wait(ctx, sessionID)
	if err != nil {
		c.tracker.logConversionFailed(time.Since(start), format, failureReason(err))
		return "", err
	}
	c.tracker.logConversionFinished(time.Since(start), format)
	return downloadURL, nil
}

// Convert runs a whole conversion. The source is a local file path, an s3://
// object, or an http(s):// or cache:// URL the service can fetch itself.
func (c *Client) Convert(ctx context.Context, source string, opts ConvertOptions) (Outcome, error) {
	if source == "" {
		return Outcome{}, &errs.InputError{Path: source, Err: errors.New("source is empty")}
	}
	if err := opts.validate(); err != nil {
		return Outcome{}, err
	}

	var (
		sourceURL string
		kind      string
		err       error
	)
	switch {
	case isRemote(source):
		sourceURL, kind = source, sourceRemote
	case strings.HasPrefix(source, "s3://"):
		kind = sourceS3
		sourceURL, err = c.presign(ctx, source, c.s3, c.logger)
		if err != nil {
			return Outcome{}, fmt.Errorf("failed to presign source: %w", err)
		}
	default:
		kind = sourceLocal
		sourceURL, err = c.Upload(ctx, source, opts)
		if err != nil {
			return Outcome{}, err
		}
	}

	return c.submitAndWait(ctx, sourceURL, kind, opts)
}

// ConvertLocalPDF uploads the file at path and converts it.
func (c *Client) ConvertLocalPDF(ctx context.Context, path string, opts ConvertOptions) (Outcome, error) {
	if err := opts.validate(); err != nil {
		return Outcome{}, err
	}
	sourceURL, err := c.Upload(ctx, path, opts)
	if err != nil {
		return Outcome{}, err
	}
	return c.submitAndWait(ctx, sourceURL, sourceLocal, opts)
}

func (c *Client) submitAndWait(ctx context.Context, sourceURL, kind string, opts ConvertOptions) (Outcome, error) {
	submitOpts := opts.SubmitOptions.withDefaults()

	sessionID, err := c.Submit(ctx, sourceURL, submitOpts)
	if err != nil {
		return Outcome{}, err
	}
	c.tracker.logConversionSubmitted(submitOpts.Format, submitOpts.Model, kind)

	outcome := Outcome{SessionID: sessionID, SourceURL: sourceURL}
	if opts.NoWait {
		return outcome, nil
	}

	downloadURL, err := c.WaitForCompletion(ctx, sessionID, submitOpts.Format, opts.Polling)
	if err != nil {
		return outcome, err
	}
	outcome.DownloadURL = downloadURL
	return outcome, nil
}

// Upload sends a local file to the service and returns its addressable location.
// Only the upload fields of opts are used.
func (c *Client) Upload(ctx context.Context, path string, opts ConvertOptions) (string, error) {
	var total int64
	progress := func(p partuploader.Progress) {
		total = p.TotalBytes
		if opts.Progress != nil {
			opts.Progress(p)
		}
	}

	start := time.Now()
	location, err := c.uploader.Upload(ctx, network.UploadParams{
		FilePath:    path,
		MaxRetries:  opts.UploadMaxRetries,
		BackoffBase: opts.UploadBackoffBase,
		Progress:    progress,
	}, c.logger)
	if err != nil {
		return "", err
	}
	c.tracker.logUploadFinished(time.Since(start), total)
	return location, nil
}

func isRemote(source string) bool {
	for _, prefix := range []string{"http://", "https://", "cache://"} {
		if strings.HasPrefix(source, prefix) {
			return true
		}
	}
	return false
}

func failureReason(err error) string {
	var (
		timeoutErr  *errs.TimeoutError
		protocolErr *errs.ProtocolError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &protocolErr):
		return "failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "transport"
	}
}
