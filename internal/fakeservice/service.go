// Package fakeservice is an in-process stand-in for the conversion REST API,
// used by tests across the module.
package fakeservice

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// Token is the bearer token the fake accepts.
const Token = "test-token"

// UploadID is the id of every upload plan the fake issues.
const UploadID = "upload-1"

// SessionID is the id of every job the fake accepts.
const SessionID = "session-1"

// Location is the addressable location returned when an upload is finalized.
const Location = "cache://upload-1.pdf"

// Result scripts one answer of the result endpoint.
type Result struct {
	State       string
	DownloadURL string
	// OmitData drops the data object from a completed answer.
	OmitData bool
	Error    string
	// Status, when set, answers with this HTTP status instead.
	Status int
}

// Service is a scriptable fake of the conversion service.
type Service struct {
	URL    string
	server *httptest.Server
	mu     sync.Mutex

	PartSize        int64
	AlreadyUploaded []int
	PartFailures    map[int]int
	FinalizeStatus  int
	SubmitError     string
	// Results are served in order, the last one repeats.
	Results []Result

	parts            map[int][]byte
	partRequests     map[int]int
	initRequests     []map[string]interface{}
	finalizeRequests int
	submissions      []Submission
	resultRequests   int
	batchOperations  []string
	requestIDs       []string
}

// Submission is a recorded submit call.
type Submission struct {
	Format string
	Body   map[string]interface{}
}

// New starts a fake service that is shut down with the test.
func New(t *testing.T) *Service {
	t.Helper()

	s := &Service{
		PartSize:     10,
		PartFailures: map[int]int{},
		parts:        map[int][]byte{},
		partRequests: map[int]int{},
	}

	r := chi.NewRouter()
	r.Put("/parts/{uploadId}/{part}", s.putPart)
	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/file-upload/init", s.initUpload)
		r.Post("/file-upload/{uploadId}/url", s.finalizeUpload)
		for _, format := range []string{"markdown", "epub"} {
			format := format
			r.Post("/pdf-transform-"+format+"/submit", s.submit(format))
			r.Get("/pdf-transform-"+format+"/result/{sessionId}", s.result)
		}
		r.Get("/pdf-transform/batches", s.listBatches)
		r.Post("/pdf-transform/batches", s.createBatch)
		r.Get("/pdf-transform/concurrent-status", s.concurrentStatus)
		r.Get("/pdf-transform/batches/{batchId}", s.getBatch)
		r.Get("/pdf-transform/batches/{batchId}/jobs", s.batchJobs)
		r.Post("/pdf-transform/batches/{batchId}/{operation}", s.batchOperation)
		r.Post("/pdf-transform/jobs/{jobId}/retry", s.retryJob)
	})

	s.server = httptest.NewServer(r)
	s.URL = s.server.URL
	t.Cleanup(s.server.Close)
	return s
}

// Parts returns the bodies received per part index.
func (s *Service) Parts() map[int][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	parts := make(map[int][]byte, len(s.parts))
	for k, v := range s.parts {
		parts[k] = v
	}
	return parts
}

// PartRequests returns the number of PUTs received for a part.
func (s *Service) PartRequests(part int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partRequests[part]
}

// InitRequests returns the recorded plan requests.
func (s *Service) InitRequests() []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]interface{}(nil), s.initRequests...)
}

// FinalizeRequests ...
func (s *Service) FinalizeRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalizeRequests
}

// Submissions ...
func (s *Service) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Submission(nil), s.submissions...)
}

// ResultRequests ...
func (s *Service) ResultRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultRequests
}

// BatchOperations returns "<operation> <id>" entries in call order.
func (s *Service) BatchOperations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.batchOperations...)
}

// RequestIDs returns the X-Request-Id headers of authenticated calls.
func (s *Service) RequestIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requestIDs...)
}

func (s *Service) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+Token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		s.mu.Lock()
		s.requestIDs = append(s.requestIDs, r.Header.Get("X-Request-Id"))
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Service) initUpload(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.initRequests = append(s.initRequests, body)

	size, _ := body["fileSize"].(float64)
	total := int((int64(size) + s.PartSize - 1) / s.PartSize)
	if total == 0 {
		total = 1
	}

	done := map[int]bool{}
	for _, p := range s.AlreadyUploaded {
		done[p] = true
	}
	urls := map[string]string{}
	for i := 1; i <= total; i++ {
		if !done[i] {
			urls[strconv.Itoa(i)] = fmt.Sprintf("%s/parts/%s/%d", s.URL, UploadID, i)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uploadId":      UploadID,
		"partSize":      s.PartSize,
		"totalParts":    total,
		"uploadedParts": s.AlreadyUploaded,
		"presignedUrls": urls,
	})
}

func (s *Service) putPart(w http.ResponseWriter, r *http.Request) {
	part, err := strconv.Atoi(chi.URLParam(r, "part"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.partRequests[part]++
	if s.PartFailures[part] > 0 {
		s.PartFailures[part]--
		http.Error(w, "temporary error", http.StatusInternalServerError)
		return
	}

	data, _ := io.ReadAll(r.Body)
	s.parts[part] = data
	w.Header().Set("ETag", fmt.Sprintf("\"etag-%d\"", part))
	w.WriteHeader(http.StatusOK)
}

func (s *Service) finalizeUpload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.finalizeRequests++
	if s.FinalizeStatus != 0 {
		http.Error(w, "finalize failed", s.FinalizeStatus)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": Location})
}

func (s *Service) submit(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		s.submissions = append(s.submissions, Submission{Format: format, Body: body})

		if s.SubmitError != "" {
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "error": s.SubmitError})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "sessionID": SessionID})
	}
}

func (s *Service) result(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if chi.URLParam(r, "sessionId") != SessionID {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	step := Result{State: "processing"}
	if len(s.Results) > 0 {
		idx := s.resultRequests
		if idx >= len(s.Results) {
			idx = len(s.Results) - 1
		}
		step = s.Results[idx]
	}
	s.resultRequests++

	if step.Status != 0 {
		http.Error(w, "status unavailable", step.Status)
		return
	}

	body := map[string]interface{}{"state": step.State}
	if step.State == "completed" && !step.OmitData {
		body["data"] = map[string]string{"downloadURL": step.DownloadURL}
	}
	if step.Error != "" {
		body["error"] = step.Error
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Service) recordBatchOperation(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchOperations = append(s.batchOperations, op)
}

func (s *Service) listBatches(w http.ResponseWriter, r *http.Request) {
	s.recordBatchOperation("list page=" + r.URL.Query().Get("page") + " pageSize=" + r.URL.Query().Get("pageSize"))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"batches":    []interface{}{batchDetail("batch-1")},
		"pagination": map[string]int{"page": 1, "pageSize": 20, "total": 1, "totalPages": 1},
	})
}

func (s *Service) createBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Files        []map[string]interface{} `json:"files"`
		OutputFormat string                   `json:"outputFormat"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.recordBatchOperation(fmt.Sprintf("create files=%d format=%s", len(body.Files), body.OutputFormat))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"batchId":      "batch-1",
		"totalFiles":   len(body.Files),
		"status":       "pending",
		"outputFormat": body.OutputFormat,
		"createdAt":    "2026-01-02T03:04:05Z",
	})
}

func (s *Service) getBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "batchId")
	s.recordBatchOperation("get " + id)
	if id != "batch-1" {
		http.Error(w, "batch not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, batchDetail(id))
}

func (s *Service) batchJobs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "batchId")
	s.recordBatchOperation("jobs " + id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs": []interface{}{map[string]interface{}{
			"id":           "job-1",
			"batchId":      id,
			"userId":       "user-1",
			"outputFormat": "markdown",
			"sourceUrl":    "https://example.com/a.pdf",
			"fileName":     "a.pdf",
			"status":       "completed",
			"resultUrl":    "https://example.com/a.zip",
			"createdAt":    "2026-01-02T03:04:05Z",
			"updatedAt":    "2026-01-02T03:05:05Z",
		}},
		"pagination": map[string]int{"page": 1, "pageSize": 20, "total": 1, "totalPages": 1},
	})
}

func (s *Service) batchOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "batchId")
	op := chi.URLParam(r, "operation")
	s.recordBatchOperation(op + " " + id)
	writeJSON(w, http.StatusOK, map[string]interface{}{"batchId": id, "status": op})
}

func (s *Service) retryJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobId")
	s.recordBatchOperation("retry-job " + id)
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobId": id, "status": "queued"})
}

func (s *Service) concurrentStatus(w http.ResponseWriter, r *http.Request) {
	s.recordBatchOperation("concurrent-status")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"maxConcurrentJobs":  5,
		"currentRunningJobs": 2,
		"canSubmitNewJob":    true,
		"availableSlots":     3,
	})
}

func batchDetail(id string) map[string]interface{} {
	return map[string]interface{}{
		"id":                id,
		"userId":            "user-1",
		"status":            "processing",
		"outputFormat":      "markdown",
		"includesFootnotes": false,
		"totalFiles":        2,
		"completedFiles":    1,
		"failedFiles":       0,
		"progress":          50,
		"createdAt":         "2026-01-02T03:04:05Z",
		"updatedAt":         "2026-01-02T03:05:05Z",
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
