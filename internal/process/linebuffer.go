// Package process owns spawned worker processes: launching them, converting
// their byte streams into protocol updates, tracking per-request lifecycle,
// and terminating them with escalation.
package process

import "bytes"

// lineBuffer accumulates raw bytes and yields complete newline-terminated
// lines. A trailing partial line is retained until the bytes that finish it
// arrive; it is never discarded and never yielded early. The set of lines
// recovered is identical regardless of how the input is chunked.
type lineBuffer struct {
	buf []byte
}

// Append adds data to the buffer and returns all complete lines now
// available, without their trailing newline. Empty lines are skipped.
func (b *lineBuffer) Append(data []byte) [][]byte {
	b.buf = append(b.buf, data...)

	var lines [][]byte
	for {
		idx := bytes.IndexByte(b.buf, '\n')
		if idx < 0 {
			break
		}
		line := b.buf[:idx]
		// Tolerate CRLF output
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(line) > 0 {
			out := make([]byte, len(line))
			copy(out, line)
			lines = append(lines, out)
		}
		b.buf = b.buf[idx+1:]
	}

	// Reclaim capacity once the consumed prefix dominates
	if len(b.buf) == 0 {
		b.buf = nil
	}

	return lines
}

// Flush returns the retained partial line, if any, and empties the buffer.
// Called once at end of stream, where an unterminated final line is complete
// by definition.
func (b *lineBuffer) Flush() []byte {
	if len(b.buf) == 0 {
		return nil
	}
	line := bytes.TrimSuffix(b.buf, []byte{'\r'})
	out := make([]byte, len(line))
	copy(out, line)
	b.buf = nil
	return out
}

// Pending returns the number of buffered bytes awaiting a newline.
func (b *lineBuffer) Pending() int {
	return len(b.buf)
}
