// Package poll waits for a submitted conversion job to reach a terminal state.
//
// The status is queried at an interval that starts at Config.CheckInterval and
// grows by Config.BackoffFactor up to Config.MaxCheckInterval, until the job
// completes, fails, or Config.MaxWait passes.
package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/pdfcraft/go-pdfcraft/errs"
	"github.com/pdfcraft/go-pdfcraft/internal"
)

// Outcome is the classification of one status answer.
type Outcome int

// Outcomes.
const (
	Pending Outcome = iota
	Completed
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// Status is one answer of the status endpoint.
type Status struct {
	State       string
	DownloadURL string
	Error       string
}

// Classify maps a status answer to an outcome. Every state other than
// completed and failed is pending.
func Classify(s Status) Outcome {
	switch s.State {
	case "completed":
		return Completed
	case "failed":
		return Failed
	default:
		return Pending
	}
}

// StatusQuerier fetches the current status of a job.
type StatusQuerier interface {
	Status(ctx context.Context, jobID string) (Status, error)
}

// StatusQuerierFunc adapts a function to StatusQuerier.
type StatusQuerierFunc func(ctx context.Context, jobID string) (Status, error)

// Status ...
func (f StatusQuerierFunc) Status(ctx context.Context, jobID string) (Status, error) {
	return f(ctx, jobID)
}

// Poller runs the wait loop. A Poller holds no per-wait state and can be used
// for several jobs.
type Poller struct {
	config  Config
	querier StatusQuerier
	logger  log.Logger
	now     func() time.Time
	sleep   internal.SleepFunc
}

// New validates the config and creates a Poller. Zero config fields take their defaults.
func New(config Config, querier StatusQuerier, logger log.Logger) (*Poller, error) {
	config, err := config.Normalize()
	if err != nil {
		return nil, err
	}
	if querier == nil {
		return nil, fmt.Errorf("status querier is nil")
	}
	if logger == nil {
		logger = log.NewLogger()
	}

	return &Poller{
		config:  config,
		querier: querier,
		logger:  logger,
		now:     time.Now,
		sleep:   internal.Sleep,
	}, nil
}

// Config returns the effective config.
func (p *Poller) Config() Config {
	return p.config
}

// Wait queries the job until it completes and returns its download location.
func (p *Poller) Wait(ctx context.Context, jobID string) (string, error) {
	start := p.now()
	interval := p.config.CheckInterval

	for attempt := 1; ; attempt++ {
		elapsed := p.now().Sub(start)
		if elapsed >= p.config.MaxWait {
			return "", &errs.TimeoutError{JobID: jobID, Elapsed: elapsed, MaxWait: p.config.MaxWait}
		}

		status, err := p.querier.Status(ctx, jobID)
		if err != nil {
			return "", fmt.Errorf("query status of job %s: %w", jobID, err)
		}

		outcome := Classify(status)
		p.logger.Debugf("Job %s: %s (attempt %d, state %q)", jobID, outcome, attempt, status.State)

		switch outcome {
		case Completed:
			if status.DownloadURL == "" {
				return "", &errs.ProtocolError{Op: "status", JobID: jobID, Message: "conversion completed but no download URL was returned"}
			}
			return status.DownloadURL, nil
		case Failed:
			reason := status.Error
			if reason == "" {
				reason = "unknown"
			}
			return "", &errs.ProtocolError{Op: "status", JobID: jobID, Message: "conversion failed: " + reason}
		}

		remaining := p.config.MaxWait - p.now().Sub(start)
		if remaining <= 0 {
			continue
		}
		if err := p.sleep(ctx, min(interval, remaining)); err != nil {
			return "", fmt.Errorf("wait for job %s: %w", jobID, err)
		}
		interval = NextInterval(interval, p.config.BackoffFactor, p.config.MaxCheckInterval)
	}
}
