package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrStreamEnded is returned to frame waiters once the session has closed,
	// whether the process exited or the session was stopped.
	ErrStreamEnded = errors.New("stream ended")
	// ErrAlreadyStarted is returned when Start is called twice on a session.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrNoFrame is returned when a capture produced no complete image.
	ErrNoFrame = errors.New("no complete frame in output")
)

// SpawnError reports a capture process that could not be started.
type SpawnError struct {
	Name string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("could not start %s: %v", e.Name, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// RuntimeError is a message the capture process wrote to its error channel.
// It does not end the session by itself.
type RuntimeError struct {
	Name    string
	Message string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}
