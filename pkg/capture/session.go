package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	uuid "github.com/google/uuid"
	broker "github.com/mpoegel/picam/pkg/broker"
	frame "github.com/mpoegel/picam/pkg/frame"
	errgroup "golang.org/x/sync/errgroup"
)

// Frame is one complete image cut from a session's stream.
type Frame struct {
	ID   string
	Seq  uint64
	Time time.Time
	Data []byte
}

// Stats is a snapshot of a session's counters.
type Stats struct {
	Bytes         uint64
	Frames        uint64
	Overflows     uint64
	RuntimeErrors uint64
	Buffered      int
}

// Session turns the output of one capture process into frames. Data, error
// and close events are handled one at a time; frames reach waiters and
// subscribers before the next event is processed.
type Session struct {
	id   string
	cfg  Config
	proc Process
	log  *slog.Logger

	frames *broker.Broker[Frame]
	raw    *broker.Broker[[]byte]
	errs   *broker.Broker[error]

	mu      sync.Mutex
	asm     frame.Assembler
	started bool
	closed  bool
	cause   error
	stats   Stats
	stdin   io.WriteCloser
	cancel  context.CancelFunc
	done    chan struct{}
	exited  chan struct{}
}

// NewSession returns a session for proc. If log is nil, slog.Default() is used.
func NewSession(cfg Config, proc Process, log *slog.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	id := uuid.NewString()
	pending := broker.WithMaxPending(cfg.MaxPending)

	return &Session{
		id:     id,
		cfg:    cfg,
		proc:   proc,
		log:    log.With("session", id, "process", proc.Name(), "policy", cfg.Policy),
		frames: broker.NewBroker[Frame](pending),
		raw:    broker.NewBroker[[]byte](pending),
		errs:   broker.NewBroker[error](),
		asm:    cfg.newAssembler(),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}, nil
}

func (s *Session) ID() string {
	return s.id
}

// Start spawns the process and begins pumping its output. A spawn failure
// ends the session and is returned as a *SpawnError.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	if s.closed {
		s.mu.Unlock()
		close(s.exited)
		return ErrStreamEnded
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	pipes, err := s.proc.Start(ctx)
	if err != nil {
		cancel()
		close(s.exited)
		spawnErr := &SpawnError{Name: s.proc.Name(), Err: err}
		s.terminate(spawnErr)
		return spawnErr
	}
	s.log.Info("capture started")

	s.mu.Lock()
	s.stdin = pipes.Stdin
	s.mu.Unlock()

	var g errgroup.Group
	g.Go(func() error {
		return s.pumpStdout(pipes.Stdout)
	})
	if pipes.Stderr != nil {
		g.Go(func() error {
			return s.pumpStderr(pipes.Stderr)
		})
	}

	go func() {
		defer close(s.exited)
		readErr := g.Wait()
		waitErr := s.proc.Wait()
		cancel()

		s.mu.Lock()
		stopped := s.closed
		s.mu.Unlock()
		switch {
		case stopped:
		case readErr != nil:
			s.HandleError(readErr)
		case waitErr != nil:
			s.HandleError(fmt.Errorf("%s exited: %w", s.proc.Name(), waitErr))
		default:
			s.HandleClose()
		}
	}()
	return nil
}

func (s *Session) pumpStdout(r io.Reader) error {
	buf := make([]byte, s.cfg.ReadSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.HandleData(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read stdout: %w", err)
		}
	}
}

func (s *Session) pumpStderr(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s.HandleError(&RuntimeError{Name: s.proc.Name(), Message: line})
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		s.log.Debug("stderr read stopped", "err", err)
	}
	return nil
}

// HandleData feeds one chunk of process output through the assembler and
// fans out every frame it completes. The chunk is not retained.
func (s *Session) HandleData(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(chunk) == 0 {
		return
	}
	s.stats.Bytes += uint64(len(chunk))

	if s.raw.Subscribers() > 0 {
		s.raw.Broadcast(bytes.Clone(chunk))
	}
	if s.asm == nil {
		return
	}

	frames, err := s.asm.Write(chunk)
	now := time.Now()
	for _, data := range frames {
		s.stats.Frames++
		s.frames.Broadcast(Frame{
			ID:   fmt.Sprintf("%s.%d", s.id, s.stats.Frames),
			Seq:  s.stats.Frames,
			Time: now,
			Data: data,
		})
	}
	if err != nil {
		s.stats.Overflows++
		s.log.Warn("discarding incomplete frame", "err", err, "limit", s.cfg.MaxBuffer)
		s.errs.Broadcast(err)
	}
}

// HandleError reports a process error. A *RuntimeError is passed on to error
// subscribers and the session continues; any other error ends the session
// with err as its cause.
func (s *Session) HandleError(err error) {
	var runtimeErr *RuntimeError
	if errors.As(err, &runtimeErr) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		s.stats.RuntimeErrors++
		s.log.Debug("process reported error", "msg", runtimeErr.Message)
		s.errs.Broadcast(err)
		return
	}
	s.errs.Broadcast(err)
	s.terminate(err)
}

// HandleClose ends the session after the process closed its output.
func (s *Session) HandleClose() {
	s.terminate(nil)
}

// terminate discards any partial frame, ends every subscription and rejects
// pending waiters. Only the first call has an effect.
func (s *Session) terminate(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cause = cause
	if s.asm != nil {
		s.stats.Buffered = s.asm.Buffered()
		s.asm.Reset()
	}
	s.frames.Stop()
	s.raw.Stop()
	s.errs.Stop()
	close(s.done)

	if cause != nil {
		s.log.Warn("capture ended", "err", cause, "frames", s.stats.Frames, "discarded", s.stats.Buffered)
	} else {
		s.log.Info("capture ended", "frames", s.stats.Frames, "discarded", s.stats.Buffered)
	}
}

// Stop ends the session and terminates the process. It blocks until the
// output pumps have exited.
func (s *Session) Stop() {
	s.terminate(nil)

	s.mu.Lock()
	cancel, started := s.cancel, s.started
	s.mu.Unlock()
	if !started {
		return
	}
	if cancel != nil {
		cancel()
	}
	<-s.exited
}

// Trigger writes a keypress to the process's stdin, which makes a still tool
// running in keypress mode take a picture.
func (s *Session) Trigger() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamEnded
	}
	if s.stdin == nil {
		return errors.New("process has no stdin")
	}
	_, err := io.WriteString(s.stdin, "\n")
	return err
}

// NextFrame waits for the next frame. It returns ErrStreamEnded, wrapping
// the session's cause if it has one, when the session ends first.
func (s *Session) NextFrame(ctx context.Context) (Frame, error) {
	f, err := s.frames.Next(ctx)
	if errors.Is(err, broker.ErrStopped) {
		return Frame{}, s.endedErr()
	}
	return f, err
}

func (s *Session) endedErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cause != nil {
		return fmt.Errorf("%w: %w", ErrStreamEnded, s.cause)
	}
	return ErrStreamEnded
}

// Subscribe returns a subscription to every frame emitted from now on.
func (s *Session) Subscribe() *broker.Subscription[Frame] {
	return s.frames.Subscribe()
}

// SubscribeRaw returns a subscription to the unparsed output chunks.
func (s *Session) SubscribeRaw() *broker.Subscription[[]byte] {
	return s.raw.Subscribe()
}

// Errors returns a subscription to runtime errors and overflow reports.
func (s *Session) Errors() *broker.Subscription[error] {
	return s.errs.Subscribe()
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the cause the session ended with, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	if !s.closed && s.asm != nil {
		st.Buffered = s.asm.Buffered()
	}
	return st
}
