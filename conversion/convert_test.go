package conversion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/pdfcraft/go-pdfcraft/errs"
	"github.com/pdfcraft/go-pdfcraft/internal/fakeservice"
	"github.com/pdfcraft/go-pdfcraft/network"
	"github.com/pdfcraft/go-pdfcraft/network/partuploader"
	"github.com/pdfcraft/go-pdfcraft/poll"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolling = poll.Config{
	MaxWait:          5 * time.Second,
	CheckInterval:    time.Millisecond,
	MaxCheckInterval: 2 * time.Millisecond,
	BackoffFactor:    2,
}

type recordingTracker struct {
	mu     sync.Mutex
	events []string
	waited bool
}

func (t *recordingTracker) Enqueue(eventName string, _ ...analytics.Properties) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, eventName)
}

func (t *recordingTracker) Wait() {
	t.waited = true
}

func newTestClient(t *testing.T, service *fakeservice.Service) (*Client, *recordingTracker) {
	t.Helper()

	tracker := &recordingTracker{}
	client, err := New(Options{
		APIKey:  fakeservice.Token,
		BaseURL: service.URL,
		Logger:  log.NewLogger(),
		Tracker: tracker,
	})
	require.NoError(t, err)
	return client, tracker
}

func writeTestPDF(t *testing.T, size int) string {
	t.Helper()

	data := make([]byte, size)
	copy(data, "%PDF-1.4\n")
	path := filepath.Join(t.TempDir(), "book.pdf")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestNew(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	client, err := New(Options{APIKey: "key"})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, client.API().BaseURL())

	client, err = New(Options{APIKey: "key", BaseURL: "https://example.com/v2/"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/v2", client.API().BaseURL())

	_, err = New(Options{APIKey: "key", APIRetryMax: -1})
	assert.Error(t, err)
}

func TestClient_Submit_Defaults(t *testing.T) {
	service := fakeservice.New(t)
	client, _ := newTestClient(t, service)

	sessionID, err := client.Submit(context.Background(), "https://example.com/a.pdf", SubmitOptions{})

	require.NoError(t, err)
	assert.Equal(t, fakeservice.SessionID, sessionID)
	submissions := service.Submissions()
	require.Len(t, submissions, 1)
	assert.Equal(t, "markdown", submissions[0].Format)
	assert.Equal(t, map[string]interface{}{
		"pdfURL":            "https://example.com/a.pdf",
		"model":             DefaultModel,
		"includesFootnotes": false,
		"ignorePdfErrors":   true,
		"ignoreOcrErrors":   true,
	}, submissions[0].Body)
}

func TestClient_Submit_Options(t *testing.T) {
	service := fakeservice.New(t)
	client, _ := newTestClient(t, service)

	_, err := client.Submit(context.Background(), "https://example.com/a.pdf", SubmitOptions{
		Format:            FormatEPUB,
		Model:             "custom",
		IncludesFootnotes: true,
		FailOnPDFErrors:   true,
		FailOnOCRErrors:   true,
	})

	require.NoError(t, err)
	submissions := service.Submissions()
	require.Len(t, submissions, 1)
	assert.Equal(t, "epub", submissions[0].Format)
	assert.Equal(t, "custom", submissions[0].Body["model"])
	assert.Equal(t, true, submissions[0].Body["includesFootnotes"])
	assert.Equal(t, false, submissions[0].Body["ignorePdfErrors"])
	assert.Equal(t, false, submissions[0].Body["ignoreOcrErrors"])
}

func TestClient_Submit_Unsuccessful(t *testing.T) {
	service := fakeservice.New(t)
	service.SubmitError = "quota exceeded"
	client, _ := newTestClient(t, service)

	_, err := client.Submit(context.Background(), "https://example.com/a.pdf", SubmitOptions{})

	var protocolErr *errs.ProtocolError
	require.True(t, errors.As(err, &protocolErr))
	assert.Equal(t, "submit", protocolErr.Op)
	assert.Contains(t, protocolErr.Message, "quota exceeded")
}

func TestClient_Submit_Validation(t *testing.T) {
	service := fakeservice.New(t)
	client, _ := newTestClient(t, service)

	_, err := client.Submit(context.Background(), "", SubmitOptions{})
	assert.Error(t, err)

	_, err = client.Submit(context.Background(), "https://example.com/a.pdf", SubmitOptions{Format: "docx"})
	assert.Error(t, err)

	assert.Empty(t, service.Submissions())
}

func TestClient_Result(t *testing.T) {
	service := fakeservice.New(t)
	service.Results = []fakeservice.Result{{State: "failed", Error: "bad scan"}}
	client, _ := newTestClient(t, service)

	status, err := client.Result(context.Background(), fakeservice.SessionID, "")

	require.NoError(t, err)
	assert.Equal(t, StateFailed, status.State)
	assert.Equal(t, "bad scan", status.Error)
	assert.Empty(t, status.DownloadURL)
}

func TestClient_Result_UnknownSession(t *testing.T) {
	service := fakeservice.New(t)
	client, _ := newTestClient(t, service)

	_, err := client.Result(context.Background(), "other", FormatMarkdown)

	var apiErr *errs.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 404, apiErr.StatusCode)
}

func TestClient_Convert_URLSource(t *testing.T) {
	service := fakeservice.New(t)
	service.Results = []fakeservice.Result{
		{State: "pending"},
		{State: "processing"},
		{State: "completed", DownloadURL: "https://example.com/out.zip"},
	}
	client, tracker := newTestClient(t, service)

	outcome, err := client.Convert(context.Background(), "https://example.com/a.pdf", ConvertOptions{Polling: fastPolling})

	require.NoError(t, err)
	assert.Equal(t, Outcome{
		SessionID:   fakeservice.SessionID,
		SourceURL:   "https://example.com/a.pdf",
		DownloadURL: "https://example.com/out.zip",
	}, outcome)
	assert.Empty(t, service.InitRequests())
	assert.Equal(t, 3, service.ResultRequests())
	assert.Equal(t, []string{"pdfcraft_conversion_submitted", "pdfcraft_conversion_finished"}, tracker.events)
}

func TestClient_Convert_CacheSource(t *testing.T) {
	service := fakeservice.New(t)
	client, _ := newTestClient(t, service)

	outcome, err := client.Convert(context.Background(), "cache://earlier.pdf", ConvertOptions{NoWait: true})

	require.NoError(t, err)
	assert.Equal(t, "cache://earlier.pdf", outcome.SourceURL)
	assert.Empty(t, service.InitRequests())
}

func TestClient_Convert_LocalFile(t *testing.T) {
	service := fakeservice.New(t)
	service.Results = []fakeservice.Result{{State: "completed", DownloadURL: "https://example.com/out.zip"}}
	client, tracker := newTestClient(t, service)
	path := writeTestPDF(t, 25)

	var progress []partuploader.Progress
	outcome, err := client.Convert(context.Background(), path, ConvertOptions{
		Polling:  fastPolling,
		Progress: func(p partuploader.Progress) { progress = append(progress, p) },
	})

	require.NoError(t, err)
	assert.Equal(t, fakeservice.Location, outcome.SourceURL)
	assert.Equal(t, "https://example.com/out.zip", outcome.DownloadURL)
	require.Len(t, service.InitRequests(), 1)
	assert.Len(t, service.Parts(), 3)
	submissions := service.Submissions()
	require.Len(t, submissions, 1)
	assert.Equal(t, fakeservice.Location, submissions[0].Body["pdfURL"])
	require.Len(t, progress, 3)
	assert.Equal(t, 100.0, progress[2].Percentage)
	assert.Equal(t, []string{
		"pdfcraft_upload_finished",
		"pdfcraft_conversion_submitted",
		"pdfcraft_conversion_finished",
	}, tracker.events)
}

func TestClient_ConvertLocalPDF(t *testing.T) {
	service := fakeservice.New(t)
	client, _ := newTestClient(t, service)
	path := writeTestPDF(t, 5)

	outcome, err := client.ConvertLocalPDF(context.Background(), path, ConvertOptions{NoWait: true})

	require.NoError(t, err)
	assert.Equal(t, fakeservice.SessionID, outcome.SessionID)
	assert.Empty(t, outcome.DownloadURL)
	assert.Len(t, service.InitRequests(), 1)
}

func TestClient_Convert_MissingFile(t *testing.T) {
	service := fakeservice.New(t)
	client, _ := newTestClient(t, service)

	_, err := client.Convert(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"), ConvertOptions{})

	var inputErr *errs.InputError
	require.True(t, errors.As(err, &inputErr))
	assert.Empty(t, service.InitRequests())
	assert.Empty(t, service.Submissions())
}

func TestClient_Convert_EmptySource(t *testing.T) {
	service := fakeservice.New(t)
	client, _ := newTestClient(t, service)

	_, err := client.Convert(context.Background(), "", ConvertOptions{})

	var inputErr *errs.InputError
	assert.True(t, errors.As(err, &inputErr))
}

func TestClient_Convert_NoWait(t *testing.T) {
	service := fakeservice.New(t)
	client, _ := newTestClient(t, service)

	outcome, err := client.Convert(context.Background(), "https://example.com/a.pdf", ConvertOptions{NoWait: true})

	require.NoError(t, err)
	assert.Equal(t, fakeservice.SessionID, outcome.SessionID)
	assert.Empty(t, outcome.DownloadURL)
	assert.Zero(t, service.ResultRequests())
}

func TestClient_Convert_Failed(t *testing.T) {
	service := fakeservice.New(t)
	service.Results = []fakeservice.Result{{State: "processing"}, {State: "failed", Error: "bad scan"}}
	client, tracker := newTestClient(t, service)

	outcome, err := client.Convert(context.Background(), "https://example.com/a.pdf", ConvertOptions{Polling: fastPolling})

	var protocolErr *errs.ProtocolError
	require.True(t, errors.As(err, &protocolErr))
	assert.Contains(t, err.Error(), "bad scan")
	assert.Equal(t, fakeservice.SessionID, outcome.SessionID)
	assert.Equal(t, []string{"pdfcraft_conversion_submitted", "pdfcraft_conversion_failed"}, tracker.events)
}

func TestClient_Convert_CompletedWithoutData(t *testing.T) {
	service := fakeservice.New(t)
	service.Results = []fakeservice.Result{{State: "completed", OmitData: true}}
	client, _ := newTestClient(t, service)

	_, err := client.Convert(context.Background(), "https://example.com/a.pdf", ConvertOptions{Polling: fastPolling})

	var protocolErr *errs.ProtocolError
	assert.True(t, errors.As(err, &protocolErr))
}

func TestClient_Convert_StatusError(t *testing.T) {
	service := fakeservice.New(t)
	service.Results = []fakeservice.Result{{State: "processing"}, {Status: 502}}
	client, _ := newTestClient(t, service)

	_, err := client.Convert(context.Background(), "https://example.com/a.pdf", ConvertOptions{Polling: fastPolling})

	var apiErr *errs.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 502, apiErr.StatusCode)
	assert.Equal(t, 2, service.ResultRequests())
}

func TestClient_WaitForCompletion_Timeout(t *testing.T) {
	service := fakeservice.New(t)
	client, _ := newTestClient(t, service)

	_, err := client.WaitForCompletion(context.Background(), fakeservice.SessionID, FormatMarkdown, poll.Config{
		MaxWait:          30 * time.Millisecond,
		CheckInterval:    5 * time.Millisecond,
		MaxCheckInterval: 10 * time.Millisecond,
		BackoffFactor:    1.5,
	})

	var timeoutErr *errs.TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, fakeservice.SessionID, timeoutErr.JobID)
}

func TestClient_WaitForCompletion_InvalidConfig(t *testing.T) {
	service := fakeservice.New(t)
	client, _ := newTestClient(t, service)

	_, err := client.WaitForCompletion(context.Background(), fakeservice.SessionID, FormatMarkdown, poll.Config{BackoffFactor: 0.5})

	assert.Error(t, err)
	assert.Zero(t, service.ResultRequests())
}

func TestClient_Convert_InvalidOptionsRejectedUpfront(t *testing.T) {
	tests := []struct {
		name string
		opts ConvertOptions
	}{
		{name: "backoff factor below one", opts: ConvertOptions{Polling: poll.Config{BackoffFactor: 0.5}}},
		{name: "ceiling below interval", opts: ConvertOptions{Polling: poll.Config{CheckInterval: time.Second, MaxCheckInterval: time.Millisecond}}},
		{name: "negative max wait", opts: ConvertOptions{Polling: poll.Config{MaxWait: -time.Second}}},
		{name: "unknown format", opts: ConvertOptions{SubmitOptions: SubmitOptions{Format: "docx"}, NoWait: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := fakeservice.New(t)
			client, tracker := newTestClient(t, service)
			path := writeTestPDF(t, 25)

			_, err := client.Convert(context.Background(), path, tt.opts)
			require.Error(t, err)

			_, err = client.ConvertLocalPDF(context.Background(), path, tt.opts)
			require.Error(t, err)

			assert.Empty(t, service.InitRequests())
			assert.Zero(t, service.FinalizeRequests())
			assert.Empty(t, service.Submissions())
			assert.Empty(t, tracker.events)
		})
	}
}

func TestClient_Convert_NoWaitSkipsPollingValidation(t *testing.T) {
	service := fakeservice.New(t)
	client, _ := newTestClient(t, service)

	outcome, err := client.Convert(context.Background(), "https://example.com/a.pdf", ConvertOptions{
		NoWait:  true,
		Polling: poll.Config{BackoffFactor: 0.5},
	})

	require.NoError(t, err)
	assert.Equal(t, fakeservice.SessionID, outcome.SessionID)
}

func TestClient_Convert_S3Source(t *testing.T) {
	service := fakeservice.New(t)
	client, _ := newTestClient(t, service)
	var presigned string
	client.presign = func(_ context.Context, rawURL string, _ network.S3Params, _ log.Logger) (string, error) {
		presigned = rawURL
		return "https://docs.s3.amazonaws.com/a.pdf?X-Amz-Signature=abc", nil
	}

	outcome, err := client.Convert(context.Background(), "s3://docs/a.pdf", ConvertOptions{NoWait: true})

	require.NoError(t, err)
	assert.Equal(t, "s3://docs/a.pdf", presigned)
	assert.Equal(t, "https://docs.s3.amazonaws.com/a.pdf?X-Amz-Signature=abc", outcome.SourceURL)
	assert.Empty(t, service.InitRequests())
}

func TestClient_Convert_S3SourceError(t *testing.T) {
	service := fakeservice.New(t)
	client, _ := newTestClient(t, service)
	missing := &errs.InputError{Path: "s3://docs/a.pdf", Err: errors.New("key not found")}
	client.presign = func(context.Context, string, network.S3Params, log.Logger) (string, error) {
		return "", missing
	}

	_, err := client.Convert(context.Background(), "s3://docs/a.pdf", ConvertOptions{})

	assert.ErrorIs(t, err, missing)
	assert.Empty(t, service.Submissions())
}

func TestClient_Close(t *testing.T) {
	service := fakeservice.New(t)
	client, tracker := newTestClient(t, service)

	client.Close()

	assert.True(t, tracker.waited)
}

func Test_failureReason(t *testing.T) {
	assert.Equal(t, "timeout", failureReason(&errs.TimeoutError{}))
	assert.Equal(t, "failed", failureReason(&errs.ProtocolError{}))
	assert.Equal(t, "cancelled", failureReason(context.Canceled))
	assert.Equal(t, "transport", failureReason(errors.New("connection reset")))
}
