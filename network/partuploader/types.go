// Package partuploader transfers a local source to a server-issued multipart
// upload plan: parts are read in order from a forward-only stream, parts the
// server already holds are skipped, and every other part is PUT to its
// pre-signed destination with a bounded, exponentially backed-off retry.
package partuploader

import (
	"fmt"
	"sort"
)

// Destination is a one-time write target for a single part.
type Destination struct {
	Method  string
	URL     string
	Headers map[string]string
}

// Plan is the multipart layout issued by the remote planner. Part indices are 1-based.
type Plan struct {
	UploadID      string
	PartSize      int64
	TotalParts    int
	UploadedParts []int
	Destinations  map[int]Destination
}

// Validate checks that the plan can be executed against a source of size
// bytes: every byte must belong to exactly one part, and no part may be empty.
func (p Plan) Validate(size int64) error {
	if p.PartSize <= 0 {
		return fmt.Errorf("part size must be positive, got %d", p.PartSize)
	}
	if p.TotalParts <= 0 {
		return fmt.Errorf("total parts must be positive, got %d", p.TotalParts)
	}
	if size < 0 {
		return fmt.Errorf("source size must not be negative, got %d", size)
	}
	if want := partCount(size, p.PartSize); int64(p.TotalParts) != want {
		return fmt.Errorf("%d part(s) of %d bytes do not match a source of %d bytes, expected %d part(s)",
			p.TotalParts, p.PartSize, size, want)
	}

	done := p.uploadedSet()
	var missing []int
	for part := 1; part <= p.TotalParts; part++ {
		if done[part] {
			continue
		}
		if d, ok := p.Destinations[part]; !ok || d.URL == "" {
			missing = append(missing, part)
		}
	}
	if len(missing) > 0 {
		sort.Ints(missing)
		return fmt.Errorf("no destination for part(s) %v", missing)
	}
	return nil
}

// partCount is the number of parts a source of size bytes splits into. An
// empty source still takes one part.
func partCount(size, partSize int64) int64 {
	if size == 0 {
		return 1
	}
	return (size-1)/partSize + 1
}

func (p Plan) uploadedSet() map[int]bool {
	set := make(map[int]bool, len(p.UploadedParts))
	for _, part := range p.UploadedParts {
		set[part] = true
	}
	return set
}

// Progress is a snapshot emitted after each part, skipped or transferred.
type Progress struct {
	UploadedBytes int64
	TotalBytes    int64
	CurrentPart   int
	TotalParts    int
	Percentage    float64
}

// ProgressCallback observes upload progress. It is called synchronously from
// the upload loop and must not panic.
type ProgressCallback func(Progress)

// PartResult represents the result of a single part.
type PartResult struct {
	Part    int
	Size    int64
	ETag    string
	Skipped bool
}

// UploadResult represents the result of uploading all parts.
type UploadResult struct {
	Parts         []PartResult
	UploadedBytes int64
}

// Transferred returns the indices of the parts that went over the network.
func (r *UploadResult) Transferred() []int {
	var parts []int
	for _, p := range r.Parts {
		if !p.Skipped {
			parts = append(parts, p.Part)
		}
	}
	return parts
}
