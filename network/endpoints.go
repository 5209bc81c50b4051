package network

import (
	"net/url"
	"strings"
)

// Endpoints holds the REST paths of the conversion service, relative to the
// base URL. Placeholders in braces are replaced with path-escaped values.
type Endpoints struct {
	UploadInit       string
	UploadFinalize   string
	Submit           string
	Result           string
	Batches          string
	Batch            string
	BatchJobs        string
	BatchOperation   string
	JobRetry         string
	ConcurrentStatus string
}

// DefaultEndpoints returns the paths used by the hosted service.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		UploadInit:       "/file-upload/init",
		UploadFinalize:   "/file-upload/{uploadId}/url",
		Submit:           "/pdf-transform-{format}/submit",
		Result:           "/pdf-transform-{format}/result/{sessionId}",
		Batches:          "/pdf-transform/batches",
		Batch:            "/pdf-transform/batches/{batchId}",
		BatchJobs:        "/pdf-transform/batches/{batchId}/jobs",
		BatchOperation:   "/pdf-transform/batches/{batchId}/{operation}",
		JobRetry:         "/pdf-transform/jobs/{jobId}/retry",
		ConcurrentStatus: "/pdf-transform/concurrent-status",
	}
}

func (e Endpoints) withDefaults() Endpoints {
	d := DefaultEndpoints()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&e.UploadInit, d.UploadInit)
	fill(&e.UploadFinalize, d.UploadFinalize)
	fill(&e.Submit, d.Submit)
	fill(&e.Result, d.Result)
	fill(&e.Batches, d.Batches)
	fill(&e.Batch, d.Batch)
	fill(&e.BatchJobs, d.BatchJobs)
	fill(&e.BatchOperation, d.BatchOperation)
	fill(&e.JobRetry, d.JobRetry)
	fill(&e.ConcurrentStatus, d.ConcurrentStatus)
	return e
}

// Expand replaces every {name} placeholder of path with the escaped value from vars.
func Expand(path string, vars map[string]string) string {
	for k, v := range vars {
		path = strings.ReplaceAll(path, "{"+k+"}", url.PathEscape(v))
	}
	return path
}
