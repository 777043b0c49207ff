package transport

import (
	"log/slog"

	"github.com/mzyy94/cs108ctl/internal/cs108"
)

// Reassembler splits a byte stream into CS108 frames. Relays may split one
// notification across several writes or pack several into one; bytes before
// a frame prefix are discarded.
type Reassembler struct {
	buf []byte
}

// Feed appends p and returns every complete frame now available.
func (r *Reassembler) Feed(p []byte) [][]byte {
	r.buf = append(r.buf, p...)
	var frames [][]byte
	for {
		r.resync()
		if len(r.buf) < cs108.HeaderSize {
			return frames
		}
		n := cs108.FrameLen(r.buf)
		if n-cs108.HeaderSize < cs108.CodeSize || n-cs108.HeaderSize > cs108.MaxBodySize {
			// Not a real header: skip the prefix byte and look again.
			slog.Debug("reassembler: discarding bad header", "len", r.buf[2])
			r.buf = r.buf[1:]
			continue
		}
		if len(r.buf) < n {
			return frames
		}
		frame := make([]byte, n)
		copy(frame, r.buf[:n])
		frames = append(frames, frame)
		r.buf = r.buf[n:]
	}
}

// Buffered returns the number of bytes held back waiting for more input.
func (r *Reassembler) Buffered() int { return len(r.buf) }

// Reset drops any partial frame.
func (r *Reassembler) Reset() { r.buf = nil }

func (r *Reassembler) resync() {
	for i, b := range r.buf {
		if b == cs108.Prefix {
			if i > 0 {
				slog.Debug("reassembler: skipped bytes before prefix", "count", i)
			}
			r.buf = r.buf[i:]
			return
		}
	}
	r.buf = r.buf[:0]
}
