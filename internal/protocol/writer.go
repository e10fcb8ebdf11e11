package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

type flusher interface {
	Flush() error
}

// LineWriter writes newline-terminated records and flushes after each one.
type LineWriter struct {
	w  io.Writer
	mu sync.Mutex
}

// NewLineWriter wraps w
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: w}
}

// WriteLine writes s followed by a newline and flushes.
func (lw *LineWriter) WriteLine(s string) error {
	return lw.write([]byte(s + "\n"))
}

// WriteJSON writes v as a single compact JSON line and flushes.
func (lw *LineWriter) WriteJSON(v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	return lw.write(buf.Bytes())
}

func (lw *LineWriter) write(p []byte) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if _, err := lw.w.Write(p); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	if f, ok := lw.w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("failed to flush record: %w", err)
		}
	}

	return nil
}
