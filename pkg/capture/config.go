package capture

import (
	"errors"
	"fmt"

	frame "github.com/mpoegel/picam/pkg/frame"
)

// Policy selects how a session splits its byte stream into frames.
type Policy int

const (
	// PolicyMJPEG splits a continuous MJPEG stream on its start marker.
	PolicyMJPEG Policy = iota
	// PolicyStill balances start and end markers so a capture with an
	// embedded thumbnail is emitted as one frame.
	PolicyStill
	// PolicyRaw does not assemble frames; only raw subscribers get data.
	PolicyRaw
)

func (p Policy) String() string {
	switch p {
	case PolicyMJPEG:
		return "mjpeg"
	case PolicyStill:
		return "still"
	case PolicyRaw:
		return "raw"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

const DefaultReadSize = 32 * 1024

// Config configures a capture session.
type Config struct {
	Policy Policy
	// Start marks the first bytes of every frame.
	Start frame.Marker
	// End marks the last bytes of a capture; PolicyStill only.
	End frame.Marker
	// SplitBursts ends each still at its balancing end marker instead of
	// emitting everything buffered, for tools that write several captures
	// back to back.
	SplitBursts bool
	// MaxBuffer bounds an incomplete frame; zero means frame.DefaultMaxBuffer,
	// negative disables the limit.
	MaxBuffer int
	// MaxPending bounds each subscriber's queue, dropping the oldest frame
	// when full. Zero means unbounded.
	MaxPending int
	// ReadSize is the stdout read size; zero means DefaultReadSize.
	ReadSize int
}

// MJPEGConfig returns a config for continuous MJPEG capture.
func MJPEGConfig(start frame.Marker) Config {
	return Config{Policy: PolicyMJPEG, Start: start}
}

// StillConfig returns a config for JPEG captures with embedded thumbnails.
func StillConfig() Config {
	return Config{Policy: PolicyStill, Start: frame.SOI, End: frame.EOI}
}

func (c Config) Validate() error {
	switch c.Policy {
	case PolicyMJPEG:
		if len(c.Start) == 0 {
			return errors.New("mjpeg policy requires a start marker")
		}
	case PolicyStill:
		if len(c.Start) == 0 || len(c.End) == 0 {
			return errors.New("still policy requires start and end markers")
		}
	case PolicyRaw:
	default:
		return fmt.Errorf("unknown policy: %v", c.Policy)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.MaxBuffer == 0 {
		c.MaxBuffer = frame.DefaultMaxBuffer
	}
	if c.ReadSize <= 0 {
		c.ReadSize = DefaultReadSize
	}
	return c
}

// newAssembler returns nil for PolicyRaw.
func (c Config) newAssembler() frame.Assembler {
	opt := frame.WithMaxBuffer(c.MaxBuffer)
	switch c.Policy {
	case PolicyMJPEG:
		return frame.NewMJPEGAssembler(c.Start, opt)
	case PolicyStill:
		if c.SplitBursts {
			return frame.NewStillAssembler(c.Start, c.End, opt, frame.WithBurstSplitting())
		}
		return frame.NewStillAssembler(c.Start, c.End, opt)
	default:
		return nil
	}
}
