// Package batch manages groups of conversion jobs that the service runs on its own.
package batch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pdfcraft/go-pdfcraft/network"
)

// Default page parameters.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
)

// Operation is a state change requested on a whole batch.
type Operation string

// Batch operations.
const (
	OperationStart  Operation = "start"
	OperationCancel Operation = "cancel"
	OperationRetry  Operation = "retry"
	OperationPause  Operation = "pause"
	OperationResume Operation = "resume"
)

// Client ...
type Client struct {
	api *network.Client
}

// New ...
func New(api *network.Client) *Client {
	return &Client{api: api}
}

// Create registers a batch of source files. The batch is not started.
func (c *Client) Create(ctx context.Context, files []File, outputFormat string, includesFootnotes bool) (Created, error) {
	if len(files) == 0 {
		return Created{}, errors.New("batch has no files")
	}
	for i, f := range files {
		if f.URL == "" || f.FileName == "" {
			return Created{}, fmt.Errorf("file %d: url and file name are required", i)
		}
	}
	if outputFormat == "" {
		outputFormat = "markdown"
	}

	var created Created
	err := c.api.DoJSON(ctx, http.MethodPost, c.api.Endpoints().Batches, createRequest{
		Files:             files,
		OutputFormat:      outputFormat,
		IncludesFootnotes: includesFootnotes,
	}, &created)
	if err != nil {
		return Created{}, fmt.Errorf("failed to create batch: %w", err)
	}
	return created, nil
}

// List returns one page of batches. Non-positive page parameters take their defaults.
func (c *Client) List(ctx context.Context, page, pageSize int) (BatchesPage, error) {
	path := c.api.Endpoints().Batches + pageQuery(page, pageSize)

	var resp BatchesPage
	if err := c.api.DoJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return BatchesPage{}, fmt.Errorf("failed to list batches: %w", err)
	}
	return resp, nil
}

// Get ...
func (c *Client) Get(ctx context.Context, batchID string) (Detail, error) {
	if batchID == "" {
		return Detail{}, errors.New("batch ID is empty")
	}
	path := network.Expand(c.api.Endpoints().Batch, map[string]string{"batchId": batchID})

	var detail Detail
	if err := c.api.DoJSON(ctx, http.MethodGet, path, nil, &detail); err != nil {
		return Detail{}, fmt.Errorf("failed to get batch %s: %w", batchID, err)
	}
	return detail, nil
}

// Jobs returns one page of the jobs of a batch.
func (c *Client) Jobs(ctx context.Context, batchID string, page, pageSize int) (JobsPage, error) {
	if batchID == "" {
		return JobsPage{}, errors.New("batch ID is empty")
	}
	path := network.Expand(c.api.Endpoints().BatchJobs, map[string]string{"batchId": batchID}) + pageQuery(page, pageSize)

	var resp JobsPage
	if err := c.api.DoJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return JobsPage{}, fmt.Errorf("failed to list jobs of batch %s: %w", batchID, err)
	}
	return resp, nil
}

// AllJobs walks every page of Jobs.
func (c *Client) AllJobs(ctx context.Context, batchID string) ([]Job, error) {
	var jobs []Job
	for page := DefaultPage; ; page++ {
		resp, err := c.Jobs(ctx, batchID, page, DefaultPageSize)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, resp.Jobs...)
		if page >= resp.Pagination.TotalPages || len(resp.Jobs) == 0 {
			return jobs, nil
		}
	}
}

// Start queues the jobs of a created batch.
func (c *Client) Start(ctx context.Context, batchID string) (OperationResult, error) {
	return c.operate(ctx, batchID, OperationStart)
}

// Cancel ...
func (c *Client) Cancel(ctx context.Context, batchID string) (OperationResult, error) {
	return c.operate(ctx, batchID, OperationCancel)
}

// Retry requeues the failed jobs of a batch.
func (c *Client) Retry(ctx context.Context, batchID string) (OperationResult, error) {
	return c.operate(ctx, batchID, OperationRetry)
}

// Pause ...
func (c *Client) Pause(ctx context.Context, batchID string) (OperationResult, error) {
	return c.operate(ctx, batchID, OperationPause)
}

// Resume ...
func (c *Client) Resume(ctx context.Context, batchID string) (OperationResult, error) {
	return c.operate(ctx, batchID, OperationResume)
}

// RetryJob requeues a single failed job.
func (c *Client) RetryJob(ctx context.Context, jobID string) (OperationResult, error) {
	if jobID == "" {
		return OperationResult{}, errors.New("job ID is empty")
	}
	path := network.Expand(c.api.Endpoints().JobRetry, map[string]string{"jobId": jobID})

	var resp OperationResult
	if err := c.api.DoJSON(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return OperationResult{}, fmt.Errorf("failed to retry job %s: %w", jobID, err)
	}
	return resp, nil
}

// ConcurrentStatus ...
func (c *Client) ConcurrentStatus(ctx context.Context) (ConcurrencyStatus, error) {
	var status ConcurrencyStatus
	if err := c.api.DoJSON(ctx, http.MethodGet, c.api.Endpoints().ConcurrentStatus, nil, &status); err != nil {
		return ConcurrencyStatus{}, fmt.Errorf("failed to get concurrency status: %w", err)
	}
	return status, nil
}

func (c *Client) operate(ctx context.Context, batchID string, op Operation) (OperationResult, error) {
	if batchID == "" {
		return OperationResult{}, errors.New("batch ID is empty")
	}
	path := network.Expand(c.api.Endpoints().BatchOperation, map[string]string{
		"batchId":   batchID,
		"operation": string(op),
	})

	var resp OperationResult
	if err := c.api.DoJSON(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return OperationResult{}, fmt.Errorf("failed to %s batch %s: %w", op, batchID, err)
	}
	return resp, nil
}

func pageQuery(page, pageSize int) string {
	if page <= 0 {
		page = DefaultPage
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	return "?" + q.Encode()
}
