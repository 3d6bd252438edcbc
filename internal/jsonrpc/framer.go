// ABOUTME: Incremental newline framing for the child's stdout stream
// ABOUTME: Carries partial lines across Feed calls and skips blank lines

package jsonrpc

import (
	"bytes"
	"iter"
	"strings"
)

// Framer splits an arbitrary byte stream into lines. It is not safe for
// concurrent use; a session feeds it from its loop goroutine only.
type Framer struct {
	buf []byte
	// scanned is how much of buf is known to hold no newline.
	scanned int
}

// Feed appends chunk to the carry-over buffer and returns the complete lines
// now available. Lines are consumed as the sequence is iterated, so stopping
// early leaves the rest buffered for the next call. Blank lines are consumed
// without being yielded.
func (f *Framer) Feed(chunk []byte) iter.Seq[string] {
	f.buf = append(f.buf, chunk...)
	return func(yield func(string) bool) {
		for {
			i := bytes.IndexByte(f.buf[f.scanned:], '\n')
			if i < 0 {
				f.scanned = len(f.buf)
				return
			}
			i += f.scanned
			line := string(bytes.TrimSuffix(f.buf[:i], []byte{'\r'}))
			f.buf = f.buf[i+1:]
			f.scanned = 0
			if strings.TrimSpace(line) == "" {
				continue
			}
			if !yield(line) {
				return
			}
		}
	}
}

// Buffered returns the number of bytes waiting for a newline.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Reset drops any carry-over.
func (f *Framer) Reset() {
	f.buf = nil
	f.scanned = 0
}
