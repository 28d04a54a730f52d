// Package framing implements the Content-Length framed byte transport used
// between the desktop client and the bridge. It has no knowledge of message
// semantics; it turns a raw byte stream into discrete payloads and back.
//
// Wire format:
//
//	Content-Length: <decimal>\r\n
//	\r\n
//	<payload of exactly that many bytes>
package framing

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	headerTerminator = "\r\n\r\n"
	contentLengthKey = "content-length:"

	// maxHeaderScan bounds how much garbage we will buffer while hunting for
	// a header terminator before giving up on the prefix.
	maxHeaderScan = 64 * 1024

	// maxPayloadSize bounds a single declared payload. Anything larger is a
	// framing error; buffering it would let a corrupt length header pin
	// arbitrary memory.
	maxPayloadSize = 32 * 1024 * 1024
)

// FramingError reports a recoverable framing failure: a malformed header or
// an implausible declared length. The decoder has already resynchronized
// past the offending bytes; the caller may keep reading.
type FramingError struct {
	Reason string
}

func (e *FramingError) Error() string { return "framing: " + e.Reason }

// Decoder accumulates bytes from r and yields complete payloads. It never
// assumes chunk boundaries align with message boundaries: a single read may
// complete zero, one, or several frames.
type Decoder struct {
	r   io.Reader
	buf []byte
	// need is the declared body length once a header has been parsed, or -1
	// while seeking the next header.
	need int
	tmp  [4096]byte
}

// NewDecoder wraps r in a Decoder.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, need: -1}
}

// Next returns the next complete payload. It returns io.EOF when the stream
// ends cleanly between frames, io.ErrUnexpectedEOF when it ends mid-frame,
// and *FramingError for a malformed header (after which it is safe to call
// Next again).
func (d *Decoder) Next() ([]byte, error) {
	for {
		if d.need < 0 {
			n, ok, err := d.seekHeader()
			if err != nil {
				return nil, err
			}
			if ok {
				d.need = n
			}
		}

		if d.need >= 0 && len(d.buf) >= d.need {
			payload := make([]byte, d.need)
			copy(payload, d.buf[:d.need])
			// The remainder may already contain the next header, possibly
			// several full messages from one chunk.
			d.buf = d.buf[d.need:]
			d.need = -1
			return payload, nil
		}

		if err := d.fill(); err != nil {
			if errors.Is(err, io.EOF) {
				if d.need < 0 && len(bytes.TrimSpace(d.buf)) == 0 {
					return nil, io.EOF
				}
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
}

// seekHeader scans the accumulation buffer for a complete header block. On
// success it consumes the block and returns (length, true, nil). If the block
// is not yet complete it returns ok=false with no error. A malformed block is
// consumed and reported as a *FramingError.
func (d *Decoder) seekHeader() (int, bool, error) {
	idx := bytes.Index(d.buf, []byte(headerTerminator))
	if idx < 0 {
		if len(d.buf) > maxHeaderScan {
			// Drop the unterminated prefix; resync at the next header pattern.
			d.buf = d.buf[len(d.buf)-len(headerTerminator):]
			return 0, false, &FramingError{Reason: "no header terminator within scan window"}
		}
		return 0, false, nil
	}

	block := string(d.buf[:idx])
	d.buf = d.buf[idx+len(headerTerminator):]

	n, err := parseContentLength(block)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func parseContentLength(block string) (int, error) {
	for _, line := range strings.Split(block, "\r\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) < len(contentLengthKey) {
			continue
		}
		if !strings.EqualFold(trimmed[:len(contentLengthKey)], contentLengthKey) {
			// Unknown header lines before the blank line are skipped.
			continue
		}
		val := strings.TrimSpace(trimmed[len(contentLengthKey):])
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 {
			return 0, &FramingError{Reason: fmt.Sprintf("invalid content length %q", val)}
		}
		if n > maxPayloadSize {
			return 0, &FramingError{Reason: fmt.Sprintf("declared length %d exceeds limit", n)}
		}
		return n, nil
	}
	return 0, &FramingError{Reason: "header block missing content length"}
}

func (d *Decoder) fill() error {
	n, err := d.r.Read(d.tmp[:])
	if n > 0 {
		d.buf = append(d.buf, d.tmp[:n]...)
		return nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return err
}
