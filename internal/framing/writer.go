package framing

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Writer serializes values onto the output stream, one frame per message.
// Concurrent completions all funnel through the same Writer, so writes are
// mutex-serialized: a frame is never interleaved with another frame's bytes.
type Writer struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewWriter wraps w in a frame Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteMessage marshals v to JSON and emits a header line declaring the exact
// payload byte length followed by the payload, with no trailing delimiter.
func (fw *Writer) WriteMessage(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame payload: %w", err)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, err := fmt.Fprintf(fw.w, "Content-Length: %d\r\n\r\n", len(payload)); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := fw.w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return fw.w.Flush()
}
