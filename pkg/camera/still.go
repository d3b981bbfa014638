package camera

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	broker "github.com/mpoegel/picam/pkg/broker"
	capture "github.com/mpoegel/picam/pkg/capture"
)

var ErrPreviewNotRunning = errors.New("live preview is not running")

// StillCamera takes JPEG captures with the still tool. Without a live
// preview every capture spawns the tool once. With a live preview the tool
// keeps running in keypress mode and each capture is a keypress on stdin.
type StillCamera struct {
	log        *slog.Logger
	newProcess NewProcessFunc

	mu      sync.Mutex
	opts    StillOptions
	preview *capture.Session
}

func NewStillCamera(opts StillOptions, log *slog.Logger) *StillCamera {
	if log == nil {
		log = slog.Default()
	}
	return &StillCamera{
		opts:       opts,
		log:        log.With("camera", "still"),
		newProcess: execProcess,
	}
}

// WithProcess replaces how the camera starts its capture tool.
func (c *StillCamera) WithProcess(fn NewProcessFunc) *StillCamera {
	c.newProcess = fn
	return c
}

func (c *StillCamera) Options() StillOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// UpdateOptions applies to the next capture and the next preview started.
func (c *StillCamera) UpdateOptions(opts StillOptions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts = opts
}

func (o StillOptions) config() capture.Config {
	cfg := capture.StillConfig()
	if len(o.Start) > 0 {
		cfg.Start = o.Start
	}
	if len(o.End) > 0 {
		cfg.End = o.End
	}
	cfg.MaxBuffer = o.MaxBuffer
	cfg.SplitBursts = o.Burst
	return cfg
}

func (o StillOptions) tool() Tool {
	if o.Tool == "" {
		return RpicamStill
	}
	return o.Tool
}

// TakeImage returns one complete capture, thumbnail included.
func (c *StillCamera) TakeImage(ctx context.Context) (capture.Frame, error) {
	c.mu.Lock()
	opts, preview := c.opts, c.preview
	c.mu.Unlock()

	if preview != nil {
		return c.trigger(ctx, preview)
	}

	tool := opts.tool()
	f, err := capture.Capture(ctx, opts.config(), c.newProcess(tool, opts.Args(false)), c.log)
	if err != nil {
		return capture.Frame{}, installHint(tool, err)
	}
	c.log.Debug("took image", "id", f.ID, "bytes", len(f.Data))
	return f, nil
}

func (c *StillCamera) trigger(ctx context.Context, s *capture.Session) (capture.Frame, error) {
	sub := s.Subscribe()
	defer sub.Close()
	if err := s.Trigger(); err != nil {
		return capture.Frame{}, err
	}
	select {
	case f, ok := <-sub.C():
		if !ok {
			if cause := s.Err(); cause != nil {
				return capture.Frame{}, errors.Join(capture.ErrStreamEnded, cause)
			}
			return capture.Frame{}, capture.ErrStreamEnded
		}
		return f, nil
	case <-ctx.Done():
		return capture.Frame{}, ctx.Err()
	}
}

// StartPreview starts the tool in keypress mode, replacing a running preview.
func (c *StillCamera) StartPreview(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.preview != nil {
		c.preview.Stop()
		c.preview = nil
	}

	tool := c.opts.tool()
	s, err := capture.NewSession(c.opts.config(), c.newProcess(tool, c.opts.Args(true)), c.log)
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		return installHint(tool, err)
	}
	c.preview = s
	return nil
}

func (c *StillCamera) StopPreview() {
	c.mu.Lock()
	s := c.preview
	c.preview = nil
	c.mu.Unlock()

	if s != nil {
		s.Stop()
	}
}

// LivePreview returns every capture the running preview produces.
func (c *StillCamera) LivePreview() (*broker.Subscription[capture.Frame], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.preview == nil {
		return nil, ErrPreviewNotRunning
	}
	return c.preview.Subscribe(), nil
}
