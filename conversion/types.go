package conversion

import (
	"fmt"
	"time"

	"github.com/pdfcraft/go-pdfcraft/network/partuploader"
	"github.com/pdfcraft/go-pdfcraft/poll"
)

// FormatType is the output format of a conversion.
type FormatType string

// Output formats.
const (
	FormatMarkdown FormatType = "markdown"
	FormatEPUB     FormatType = "epub"
)

// Valid reports whether the service knows the format.
func (f FormatType) Valid() bool {
	switch f {
	case FormatMarkdown, FormatEPUB:
		return true
	default:
		return false
	}
}

// JobState is the wire state of a conversion job.
type JobState string

// Job states. Any other string is treated as still pending.
const (
	StatePending    JobState = "pending"
	StateProcessing JobState = "processing"
	StateCompleted  JobState = "completed"
	StateFailed     JobState = "failed"
)

// PollingStrategy is a backoff factor preset of the completion poller.
type PollingStrategy = poll.Strategy

// Polling presets.
const (
	PollingFixed       = poll.Fixed
	PollingExponential = poll.Exponential
	PollingAggressive  = poll.Aggressive
)

// DefaultModel is the conversion model used when none is given.
const DefaultModel = "gundam"

// SubmitOptions shape a submit request.
type SubmitOptions struct {
	// Format defaults to markdown.
	Format FormatType
	// Model defaults to DefaultModel.
	Model             string
	IncludesFootnotes bool
	// FailOnPDFErrors makes the service fail the job on malformed PDF input
	// instead of converting what it can.
	FailOnPDFErrors bool
	// FailOnOCRErrors does the same for OCR failures.
	FailOnOCRErrors bool
}

func (o SubmitOptions) withDefaults() SubmitOptions {
	if o.Format == "" {
		o.Format = FormatMarkdown
	}
	if o.Model == "" {
		o.Model = DefaultModel
	}
	return o
}

func (o SubmitOptions) validate() error {
	if o = o.withDefaults(); !o.Format.Valid() {
		return fmt.Errorf("unknown output format: %s", o.Format)
	}
	return nil
}

// ConvertOptions ...
type ConvertOptions struct {
	SubmitOptions

	// NoWait returns right after submission, without a download URL.
	NoWait bool
	// Polling zero fields take the poll package defaults.
	Polling poll.Config

	// Progress is called after every uploaded part of a local source.
	Progress partuploader.ProgressCallback
	// UploadMaxRetries is the attempt budget per part, 3 when zero.
	UploadMaxRetries int
	// UploadBackoffBase is the first retry delay of a part, 1s when zero.
	UploadBackoffBase time.Duration
}

// Status is the state of a job as reported by the service.
type Status struct {
	State       JobState
	DownloadURL string
	Error       string
}

// Outcome of a Convert call. DownloadURL is empty when NoWait was set.
type Outcome struct {
	SessionID   string
	SourceURL   string
	DownloadURL string
}

// validate rejects options that would fail after the source was already
// uploaded or the job submitted.
func (o ConvertOptions) validate() error {
	if err := o.SubmitOptions.validate(); err != nil {
		return err
	}
	if o.NoWait {
		return nil
	}
	_, err := o.Polling.Normalize()
	return err
}
