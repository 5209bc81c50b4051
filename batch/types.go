package batch

import "time"

// Status is the wire state of a batch.
type Status string

// Batch states.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusPaused     Status = "paused"
)

// Terminal reports whether no further work will happen on the batch.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// JobStatus is the wire state of a single job of a batch.
type JobStatus string

// Job states.
const (
	JobPending    JobStatus = "pending"
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
	JobPaused     JobStatus = "paused"
)

// File is one source of a batch.
type File struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize,omitempty"`
}

type createRequest struct {
	Files             []File `json:"files"`
	OutputFormat      string `json:"outputFormat"`
	IncludesFootnotes bool   `json:"includesFootnotes"`
}

// Created is the answer of a create call.
type Created struct {
	BatchID      string    `json:"batchId"`
	TotalFiles   int       `json:"totalFiles"`
	Status       Status    `json:"status"`
	OutputFormat string    `json:"outputFormat"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Detail ...
type Detail struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	Status            Status    `json:"status"`
	OutputFormat      string    `json:"outputFormat"`
	IncludesFootnotes bool      `json:"includesFootnotes"`
	TotalFiles        int       `json:"totalFiles"`
	CompletedFiles    int       `json:"completedFiles"`
	FailedFiles       int       `json:"failedFiles"`
	Progress          float64   `json:"progress"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Job ...
type Job struct {
	ID           string     `json:"id"`
	BatchID      string     `json:"batchId"`
	UserID       string     `json:"userId"`
	OutputFormat string     `json:"outputFormat"`
	SourceURL    string     `json:"sourceUrl"`
	FileName     string     `json:"fileName"`
	FileSize     int64      `json:"fileSize,omitempty"`
	Status       JobStatus  `json:"status"`
	ResultURL    string     `json:"resultUrl,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	Progress     float64    `json:"progress,omitempty"`
	RetryCount   int        `json:"retryCount,omitempty"`
	TaskID       string     `json:"taskId,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Pagination ...
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// BatchesPage is one page of List.
type BatchesPage struct {
	Batches    []Detail   `json:"batches"`
	Pagination Pagination `json:"pagination"`
}

// JobsPage is one page of Jobs.
type JobsPage struct {
	Jobs       []Job      `json:"jobs"`
	Pagination Pagination `json:"pagination"`
}

// ConcurrencyStatus reports the job slots of the account.
type ConcurrencyStatus struct {
	MaxConcurrentJobs  int  `json:"maxConcurrentJobs"`
	CurrentRunningJobs int  `json:"currentRunningJobs"`
	CanSubmitNewJob    bool `json:"canSubmitNewJob"`
	AvailableSlots     int  `json:"availableSlots,omitempty"`
	QueuedJobs         int  `json:"queuedJobs,omitempty"`
}

// OperationResult is the answer of the start, cancel, retry, pause and resume calls.
type OperationResult struct {
	BatchID       string `json:"batchId,omitempty"`
	JobID         string `json:"jobId,omitempty"`
	QueuedJobs    int    `json:"queuedJobs,omitempty"`
	CancelledJobs int    `json:"cancelledJobs,omitempty"`
	RetriedJobs   int    `json:"retriedJobs,omitempty"`
	PausedJobs    int    `json:"pausedJobs,omitempty"`
	ResumedJobs   int    `json:"resumedJobs,omitempty"`
	Status        string `json:"status,omitempty"`
}
