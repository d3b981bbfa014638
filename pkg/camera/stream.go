package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"

	broker "github.com/mpoegel/picam/pkg/broker"
	capture "github.com/mpoegel/picam/pkg/capture"
)

var (
	ErrCodecNotMJPEG = errors.New("codec must be MJPEG to take images from a stream")
	ErrNotCapturing  = errors.New("camera is not capturing")
)

// NewProcessFunc creates the process a camera runs for one capture.
type NewProcessFunc func(tool Tool, args []string) capture.Process

func execProcess(tool Tool, args []string) capture.Process {
	return capture.NewExecProcess(string(tool), args...)
}

// installHint adds a hint to errors caused by a missing capture tool.
func installHint(tool Tool, err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w (is %s installed?)", err, tool)
	}
	return err
}

// StreamCamera runs the video tool and exposes its output as frames or raw
// chunks. At most one capture session is active at a time.
type StreamCamera struct {
	opts       StreamOptions
	log        *slog.Logger
	newProcess NewProcessFunc

	mu      sync.Mutex
	session *capture.Session
}

func NewStreamCamera(opts StreamOptions, log *slog.Logger) *StreamCamera {
	if log == nil {
		log = slog.Default()
	}
	return &StreamCamera{
		opts:       opts,
		log:        log.With("camera", "stream"),
		newProcess: execProcess,
	}
}

// WithProcess replaces how the camera starts its capture tool.
func (c *StreamCamera) WithProcess(fn NewProcessFunc) *StreamCamera {
	c.newProcess = fn
	return c
}

func (c *StreamCamera) Options() StreamOptions {
	return c.opts
}

func (c *StreamCamera) config() capture.Config {
	cfg := capture.Config{Policy: capture.PolicyRaw}
	if c.opts.Codec == CodecMJPEG {
		cfg = capture.MJPEGConfig(c.opts.startMarker())
	}
	cfg.MaxBuffer = c.opts.MaxBuffer
	cfg.MaxPending = c.opts.MaxPending
	return cfg
}

// StartCapture starts a new capture session, ending any active one first.
// It returns once the tool has been spawned.
func (c *StreamCamera) StartCapture(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		c.session.Stop()
		c.session = nil
	}

	tool := c.opts.Tool
	if tool == "" {
		tool = RpicamVid
	}
	s, err := capture.NewSession(c.config(), c.newProcess(tool, c.opts.Args()), c.log)
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		return installHint(tool, err)
	}
	c.session = s
	return nil
}

// StopCapture ends the active session. Subscribers see end of stream.
func (c *StreamCamera) StopCapture() {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.mu.Unlock()

	if s != nil {
		s.Stop()
	}
}

// Capturing reports whether a session is running.
func (c *StreamCamera) Capturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return false
	}
	select {
	case <-c.session.Done():
		return false
	default:
		return true
	}
}

func (c *StreamCamera) active() (*capture.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, ErrNotCapturing
	}
	return c.session, nil
}

// TakeImage waits for the next complete frame of the running stream.
func (c *StreamCamera) TakeImage(ctx context.Context) (capture.Frame, error) {
	if c.opts.Codec != CodecMJPEG {
		return capture.Frame{}, ErrCodecNotMJPEG
	}
	s, err := c.active()
	if err != nil {
		return capture.Frame{}, err
	}
	return s.NextFrame(ctx)
}

// Subscribe returns every frame of the running session.
func (c *StreamCamera) Subscribe() (*broker.Subscription[capture.Frame], error) {
	if c.opts.Codec != CodecMJPEG {
		return nil, ErrCodecNotMJPEG
	}
	s, err := c.active()
	if err != nil {
		return nil, err
	}
	return s.Subscribe(), nil
}

// CreateStream returns the tool's output chunks untouched, for any codec.
func (c *StreamCamera) CreateStream() (*broker.Subscription[[]byte], error) {
	s, err := c.active()
	if err != nil {
		return nil, err
	}
	return s.SubscribeRaw(), nil
}

// Errors returns the running session's runtime errors and overflow reports.
func (c *StreamCamera) Errors() (*broker.Subscription[error], error) {
	s, err := c.active()
	if err != nil {
		return nil, err
	}
	return s.Errors(), nil
}

func (c *StreamCamera) Stats() capture.Stats {
	s, err := c.active()
	if err != nil {
		return capture.Stats{}
	}
	return s.Stats()
}
