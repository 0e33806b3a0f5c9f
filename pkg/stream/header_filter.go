// Package stream provides incremental byte-stream transforms for result
// assembly.
package stream

import (
	"bytes"
	"io"
)

// headerStrippingReader removes the first line of a stream, up to and
// including the first newline, and passes every later byte through
// unmodified. The newline may fall anywhere across read boundaries. A stream
// that ends before any newline yields EOF with no output and no error.
type headerStrippingReader struct {
	r       io.Reader
	skipped bool
}

// NewHeaderStrippingReader wraps r so its first line is removed.
// One instance handles exactly one stream; the header-skipped flag is scoped
// to that stream.
func NewHeaderStrippingReader(r io.Reader) io.Reader {
	return &headerStrippingReader{r: r}
}

// Read implements io.Reader.
func (h *headerStrippingReader) Read(p []byte) (int, error) {
	if h.skipped {
		return h.r.Read(p)
	}
	if len(p) == 0 {
		return 0, nil
	}

	for {
		n, err := h.r.Read(p)
		if n > 0 {
			if i := bytes.IndexByte(p[:n], '\n'); i >= 0 {
				h.skipped = true
				// Shift the bytes after the newline to the front. copy is
				// safe here: dst starts before src and both walk forward.
				rest := copy(p, p[i+1:n])
				if rest > 0 {
					return rest, nil
				}
				// Header ended exactly at the read boundary.
				return h.r.Read(p)
			}
			// Entire chunk is still header: discard and read again.
		}
		if err != nil {
			// EOF before any newline: the page contributes nothing.
			return 0, err
		}
	}
}
