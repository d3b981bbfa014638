package camera

import (
	"bufio"
	"context"
	"io"
	"sync"
	"time"

	capture "github.com/mpoegel/picam/pkg/capture"
	frame "github.com/mpoegel/picam/pkg/frame"
)

// fakeTool stands in for a capture tool. Output is written by the test,
// by script, or by onKeypress for every line read from stdin.
type fakeTool struct {
	tool Tool
	args []string

	script     func(p *fakeTool)
	onKeypress func(p *fakeTool)

	stdoutR, stderrR, stdinR *io.PipeReader
	stdoutW, stderrW, stdinW *io.PipeWriter

	once   sync.Once
	exited chan struct{}
}

func newFakeTool(tool Tool, args []string) *fakeTool {
	p := &fakeTool{tool: tool, args: args, exited: make(chan struct{})}
	p.stdoutR, p.stdoutW = io.Pipe()
	p.stderrR, p.stderrW = io.Pipe()
	p.stdinR, p.stdinW = io.Pipe()
	return p
}

func (p *fakeTool) Name() string { return string(p.tool) }

func (p *fakeTool) Start(ctx context.Context) (capture.Pipes, error) {
	go func() {
		select {
		case <-ctx.Done():
			p.exit()
		case <-p.exited:
		}
	}()
	go func() {
		scanner := bufio.NewScanner(p.stdinR)
		for scanner.Scan() {
			if p.onKeypress != nil {
				p.onKeypress(p)
			}
		}
	}()
	if p.script != nil {
		go p.script(p)
	}
	return capture.Pipes{Stdin: p.stdinW, Stdout: p.stdoutR, Stderr: p.stderrR}, nil
}

func (p *fakeTool) Wait() error {
	<-p.exited
	return nil
}

func (p *fakeTool) exit() {
	p.once.Do(func() {
		p.stdoutW.Close()
		p.stderrW.Close()
		p.stdinR.Close()
		close(p.exited)
	})
}

// pump writes frames until the tool exits.
func (p *fakeTool) pump() {
	for i := 0; ; i++ {
		if _, err := p.stdoutW.Write(mjpegFrame(byte(i))); err != nil {
			return
		}
		select {
		case <-p.exited:
			return
		case <-time.After(time.Millisecond):
		}
	}
}

// toolRecorder hands out fake tools and remembers every one it started.
type toolRecorder struct {
	mu    sync.Mutex
	tools []*fakeTool
	setup func(p *fakeTool)
}

func (r *toolRecorder) newProcess(tool Tool, args []string) capture.Process {
	p := newFakeTool(tool, args)
	if r.setup != nil {
		r.setup(p)
	}
	r.mu.Lock()
	r.tools = append(r.tools, p)
	r.mu.Unlock()
	return p
}

func (r *toolRecorder) last() *fakeTool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.tools) == 0 {
		return nil
	}
	return r.tools[len(r.tools)-1]
}

func (r *toolRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tools)
}

func mjpegFrame(n byte) []byte {
	return append(append([]byte{}, frame.MJPEGStart...), 0xE0, n, n, n)
}

// stillImage is a capture with an embedded thumbnail.
func stillImage(n byte) []byte {
	return []byte{
		0xFF, 0xD8, 0xFF, 0xE1, n,
		0xFF, 0xD8, n, 0xFF, 0xD9,
		n, n, 0xFF, 0xD9,
	}
}

func recv[T any](c <-chan T, timeout time.Duration) (T, bool, bool) {
	select {
	case v, ok := <-c:
		return v, ok, false
	case <-time.After(timeout):
		var zero T
		return zero, false, true
	}
}
