package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Capture runs proc until its output yields one frame and returns it. The
// process is stopped once the frame is in hand. If the process ends without a
// complete frame, the error wraps ErrNoFrame and carries whatever the process
// wrote to stderr.
func Capture(ctx context.Context, cfg Config, proc Process, log *slog.Logger) (Frame, error) {
	s, err := NewSession(cfg, proc, log)
	if err != nil {
		return Frame{}, err
	}
	frames := s.Subscribe()
	defer frames.Close()
	errs := s.Errors()
	defer errs.Close()

	if err := s.Start(ctx); err != nil {
		return Frame{}, err
	}
	defer s.Stop()

	var messages []string
	errC := errs.C()
	for {
		select {
		case f, ok := <-frames.C():
			if ok {
				return f, nil
			}
			// The error subscription closes after its queue is delivered.
			if errC != nil {
				for err := range errC {
					messages = appendRuntime(messages, err)
				}
			}
			return Frame{}, noFrame(s.Err(), messages)
		case err, ok := <-errC:
			if !ok {
				errC = nil
				continue
			}
			messages = appendRuntime(messages, err)
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		}
	}
}

// appendRuntime keeps stderr messages; fatal errors are reported as the cause.
func appendRuntime(messages []string, err error) []string {
	var runtimeErr *RuntimeError
	if errors.As(err, &runtimeErr) {
		messages = append(messages, runtimeErr.Message)
	}
	return messages
}

func noFrame(cause error, messages []string) error {
	switch {
	case cause != nil && len(messages) > 0:
		return fmt.Errorf("%w: %w (%s)", ErrNoFrame, cause, strings.Join(messages, "; "))
	case cause != nil:
		return fmt.Errorf("%w: %w", ErrNoFrame, cause)
	case len(messages) > 0:
		return fmt.Errorf("%w: %s", ErrNoFrame, strings.Join(messages, "; "))
	default:
		return ErrNoFrame
	}
}
