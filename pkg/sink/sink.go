// Package sink drains an assembled result stream into a destination.
package sink

import (
	"fmt"
	"io"
	"os"
)

// SinkError represents a destination write failure.
type SinkError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *SinkError) Error() string {
	return fmt.Sprintf("write results to %s: %v", e.Path, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *SinkError) Unwrap() error {
	return e.Err
}

// WriteFile drains r into the named file, truncating it if it exists.
// Returns the number of bytes written. Partial output is left in place on
// failure; the caller decides whether to remove it.
func WriteFile(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, &SinkError{Path: path, Err: err}
	}

	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		return n, &SinkError{Path: path, Err: err}
	}

	if err := f.Close(); err != nil {
		return n, &SinkError{Path: path, Err: err}
	}

	return n, nil
}

// ReadAll accumulates the whole stream in memory.
// Only suitable for small result sets; a multi-gigabyte export belongs in
// WriteFile, which never holds more than one copy buffer at a time.
func ReadAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read result stream: %w", err)
	}
	return data, nil
}
