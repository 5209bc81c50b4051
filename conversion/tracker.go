package conversion

import (
	"time"

	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
)

// Tracker receives usage events. analytics.Tracker satisfies it.
type Tracker interface {
	Enqueue(eventName string, properties ...analytics.Properties)
	Wait()
}

const analyticsTimeout = 10 * time.Second

// NewTracker creates an analytics tracker that posts events to endpoint.
// It returns nil when endpoint is empty, which leaves tracking off.
func NewTracker(endpoint string, envRepo env.Repository, logger log.Logger) Tracker {
	if endpoint == "" {
		return nil
	}

	httpClient := retryhttp.NewClient(logger).StandardClient()
	httpClient.Timeout = analyticsTimeout

	p := analytics.Properties{
		"client": "go-pdfcraft",
		"ci":     envRepo.Get("CI") == "true",
	}
	return analytics.NewTracker(analytics.NewClient(httpClient, endpoint, logger, analyticsTimeout), analyticsTimeout, p)
}

type noopTracker struct{}

func (noopTracker) Enqueue(string, ...analytics.Properties) {}

func (noopTracker) Wait() {}

type conversionTracker struct {
	tracker Tracker
}

func (t conversionTracker) logUploadFinished(uploadTime time.Duration, size int64) {
	properties := analytics.Properties{
		"upload_time_s":     uploadTime.Truncate(time.Second).Seconds(),
		"upload_size_bytes": size,
	}
	t.tracker.Enqueue("pdfcraft_upload_finished", properties)
}

func (t conversionTracker) logConversionSubmitted(format FormatType, model, sourceKind string) {
	properties := analytics.Properties{
		"format":      string(format),
		"model":       model,
		"source_kind": sourceKind,
	}
	t.tracker.Enqueue("pdfcraft_conversion_submitted", properties)
}

func (t conversionTracker) logConversionFinished(waitTime time.Duration, format FormatType) {
	properties := analytics.Properties{
		"wait_time_s": waitTime.Truncate(time.Second).Seconds(),
		"format":      string(format),
	}
	t.tracker.Enqueue("pdfcraft_conversion_finished", properties)
}

func (t conversionTracker) logConversionFailed(waitTime time.Duration, format FormatType, reason string) {
	properties := analytics.Properties{
		"wait_time_s": waitTime.Truncate(time.Second).Seconds(),
		"format":      string(format),
		"reason":      reason,
	}
	t.tracker.Enqueue("pdfcraft_conversion_failed", properties)
}

func (t conversionTracker) wait() {
	t.tracker.Wait()
}
