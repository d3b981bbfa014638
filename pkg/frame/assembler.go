package frame

import (
	"bytes"
	"errors"
)

// DefaultMaxBuffer bounds how many bytes an assembler holds for a frame that
// has not completed yet.
const DefaultMaxBuffer = 16 << 20

// ErrBufferOverflow is returned when the buffered partial frame grows past the
// configured limit. The partial frame is discarded and the assembler resyncs
// on the next start marker.
var ErrBufferOverflow = errors.New("frame buffer overflow")

// Assembler splits a chunked byte stream into complete frames.
type Assembler interface {
	// Write ingests one chunk and returns the frames it completed, in stream
	// order. Returned frames never alias the assembler's buffer.
	Write(chunk []byte) ([][]byte, error)
	// Buffered reports the number of bytes held for an incomplete frame.
	Buffered() int
	// Reset drops buffered bytes and counters.
	Reset()
}

type Option func(*options)

type options struct {
	maxBuffer   int
	splitBursts bool
}

// WithMaxBuffer sets the overflow limit. n <= 0 disables the limit.
func WithMaxBuffer(n int) Option {
	return func(o *options) {
		o.maxBuffer = n
	}
}

// WithBurstSplitting makes a StillAssembler end each capture at its balancing
// end marker and keep the bytes after it as the start of the next capture.
// Without it the whole buffer is emitted once the markers balance.
func WithBurstSplitting() Option {
	return func(o *options) {
		o.splitBursts = true
	}
}

func newOptions(opts []Option) options {
	o := options{maxBuffer: DefaultMaxBuffer}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// tailFrom is the first offset at which m could still begin once more bytes
// arrive.
func tailFrom(buf []byte, m Marker) int {
	return max(0, len(buf)-len(m)+1)
}

// MJPEGAssembler extracts frames from a concatenated MJPEG stream. Every frame
// begins with the same start marker and ends where the next one begins, so a
// frame is only emitted once the following frame has started.
//
// A start marker occurring inside payload data splits that frame in two.
// This is accepted for markers of three bytes or more.
type MJPEGAssembler struct {
	start Marker
	opt   options

	buf []byte
	// scan is where the search for the next frame's marker resumes.
	scan int
}

func NewMJPEGAssembler(start Marker, opts ...Option) *MJPEGAssembler {
	if len(start) == 0 {
		panic("frame: empty start marker")
	}
	return &MJPEGAssembler{
		start: start,
		opt:   newOptions(opts),
	}
}

func (a *MJPEGAssembler) Write(chunk []byte) ([][]byte, error) {
	a.buf = append(a.buf, chunk...)

	var frames [][]byte
	off := 0
	for {
		i := FindFirst(a.buf, a.start, off)
		if i == NotFound {
			// Nothing before a start marker can become part of a frame.
			off = max(off, tailFrom(a.buf, a.start))
			a.scan = 0
			break
		}
		if i > off {
			off = i
			a.scan = 0
		}

		from := max(off+len(a.start), a.scan)
		next := FindFirst(a.buf, a.start, from)
		if next == NotFound {
			a.scan = max(from, tailFrom(a.buf, a.start))
			break
		}
		frames = append(frames, bytes.Clone(a.buf[off:next]))
		off = next
		a.scan = 0
	}

	a.discard(off)
	if a.opt.maxBuffer > 0 && len(a.buf) > a.opt.maxBuffer {
		a.Reset()
		return frames, ErrBufferOverflow
	}
	return frames, nil
}

func (a *MJPEGAssembler) discard(n int) {
	if n == 0 {
		return
	}
	a.buf = a.buf[:copy(a.buf, a.buf[n:])]
	a.scan = max(0, a.scan-n)
}

func (a *MJPEGAssembler) Buffered() int {
	return len(a.buf)
}

func (a *MJPEGAssembler) Reset() {
	a.buf = nil
	a.scan = 0
}

// StillAssembler extracts single captures whose bytes may embed a thumbnail
// that uses the same start and end markers as the primary image. Start and
// end markers are counted in stream order and a capture completes at the end
// marker that balances the counts.
type StillAssembler struct {
	start Marker
	end   Marker
	opt   options

	buf        []byte
	startsSeen int
	endsSeen   int
	// Offsets in buf where the next start and end marker searches resume.
	nextStart int
	nextEnd   int
}

func NewStillAssembler(start, end Marker, opts ...Option) *StillAssembler {
	if len(start) == 0 || len(end) == 0 {
		panic("frame: empty start or end marker")
	}
	return &StillAssembler{
		start: start,
		end:   end,
		opt:   newOptions(opts),
	}
}

func (a *StillAssembler) Write(chunk []byte) ([][]byte, error) {
	a.buf = append(a.buf, chunk...)

	var frames [][]byte
	off := 0
	for {
		if a.startsSeen == 0 {
			i := FindFirst(a.buf, a.start, off)
			if i == NotFound {
				off = max(off, tailFrom(a.buf, a.start))
				break
			}
			off = i
			a.nextStart, a.nextEnd = off, off
		}

		n, ok := a.balance()
		if !ok {
			break
		}
		if !a.opt.splitBursts {
			frames = append(frames, bytes.Clone(a.buf[off:]))
			off = len(a.buf)
			a.startsSeen, a.endsSeen = 0, 0
			break
		}
		frames = append(frames, bytes.Clone(a.buf[off:n]))
		off = n
		a.startsSeen, a.endsSeen = 0, 0
	}

	a.discard(off)
	if a.opt.maxBuffer > 0 && len(a.buf) > a.opt.maxBuffer {
		a.Reset()
		return frames, ErrBufferOverflow
	}
	return frames, nil
}

// balance counts markers not seen yet, in stream order. It returns the offset
// just past the end marker that brought the counts level.
func (a *StillAssembler) balance() (int, bool) {
	for {
		s := FindFirst(a.buf, a.start, a.nextStart)
		e := FindFirst(a.buf, a.end, a.nextEnd)
		if s == NotFound && e == NotFound {
			break
		}
		if e == NotFound || (s != NotFound && s <= e) {
			a.startsSeen++
			a.nextStart = s + len(a.start)
			continue
		}
		a.endsSeen++
		a.nextEnd = e + len(a.end)
		if a.startsSeen == a.endsSeen {
			return a.nextEnd, true
		}
	}
	a.nextStart = max(a.nextStart, tailFrom(a.buf, a.start))
	a.nextEnd = max(a.nextEnd, tailFrom(a.buf, a.end))
	return 0, false
}

func (a *StillAssembler) discard(n int) {
	if n == 0 {
		return
	}
	a.buf = a.buf[:copy(a.buf, a.buf[n:])]
	a.nextStart = max(0, a.nextStart-n)
	a.nextEnd = max(0, a.nextEnd-n)
}

func (a *StillAssembler) Buffered() int {
	return len(a.buf)
}

func (a *StillAssembler) Reset() {
	a.buf = nil
	a.startsSeen, a.endsSeen = 0, 0
	a.nextStart, a.nextEnd = 0, 0
}
