package partuploader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// maxPrealloc caps the buffer reserved up front when the stream length is unknown.
const maxPrealloc = 8 << 20

// Source is the byte stream an upload reads its parts from.
type Source struct {
	// Name identifies the source in errors, usually the file path.
	Name   string
	Reader io.Reader
	Size   int64
}

// ChunkReader is a forward-only cursor over a byte stream. Parts are pulled
// from it in order; nothing is buffered beyond the chunk being returned.
type ChunkReader struct {
	r      io.Reader
	size   int64
	offset int64
	done   bool
}

// NewChunkReader creates a ChunkReader positioned at the start of r, a stream
// of unknown length.
func NewChunkReader(r io.Reader) *ChunkReader {
	return &ChunkReader{r: r, size: -1}
}

// NewSizedChunkReader creates a ChunkReader over the first size bytes of r.
// Chunks never extend past size.
func NewSizedChunkReader(r io.Reader, size int64) *ChunkReader {
	if size < 0 {
		size = -1
	}
	return &ChunkReader{r: r, size: size}
}

// Offset returns the number of bytes consumed so far.
func (c *ChunkReader) Offset() int64 {
	return c.offset
}

// Next returns exactly n bytes, or every remaining byte when the stream ends
// first. It returns io.EOF only when the stream has nothing left.
func (c *ChunkReader) Next(n int64) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", n)
	}
	if c.done {
		return nil, io.EOF
	}

	limit := n
	if c.size >= 0 {
		remaining := c.size - c.offset
		if remaining <= 0 {
			c.done = true
			return nil, io.EOF
		}
		limit = min(n, remaining)
	}

	var buf bytes.Buffer
	buf.Grow(int(min(limit, maxPrealloc)))
	read, err := io.CopyN(&buf, c.r, limit)
	c.offset += read

	switch {
	case err == nil:
		return buf.Bytes(), nil
	case errors.Is(err, io.EOF):
		c.done = true
		if read == 0 {
			return nil, io.EOF
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("read at offset %d: %w", c.offset, err)
	}
}

// Skip advances the cursor by up to n bytes without returning them. Seekable
// streams are moved directly, anything else is drained.
func (c *ChunkReader) Skip(n int64) (int64, error) {
	if n <= 0 || c.done {
		return 0, nil
	}
	if c.size >= 0 {
		n = min(n, c.size-c.offset)
		if n <= 0 {
			c.done = true
			return 0, nil
		}
	}

	if seeker, ok := c.r.(io.Seeker); ok {
		cur, err := seeker.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, fmt.Errorf("seek at offset %d: %w", c.offset, err)
		}
		end, err := seeker.Seek(0, io.SeekEnd)
		if err != nil {
			return 0, fmt.Errorf("seek at offset %d: %w", c.offset, err)
		}
		skipped := n
		if remaining := end - cur; remaining <= n {
			skipped = remaining
			c.done = true
		}
		if _, err := seeker.Seek(cur+skipped, io.SeekStart); err != nil {
			return 0, fmt.Errorf("seek to offset %d: %w", cur+skipped, err)
		}
		c.offset += skipped
		return skipped, nil
	}

	skipped, err := io.CopyN(io.Discard, c.r, n)
	c.offset += skipped
	if errors.Is(err, io.EOF) {
		c.done = true
		return skipped, nil
	}
	if err != nil {
		return skipped, fmt.Errorf("skip at offset %d: %w", c.offset, err)
	}
	return skipped, nil
}
