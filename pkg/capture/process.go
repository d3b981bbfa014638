package capture

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Pipes are the standard streams of a running capture process.
type Pipes struct {
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser
}

// Process is a capture tool that can be started once. Cancelling the context
// passed to Start must terminate it.
type Process interface {
	Name() string
	Start(ctx context.Context) (Pipes, error)
	Wait() error
}

// ExecProcess runs a capture tool with os/exec.
type ExecProcess struct {
	Path string
	Args []string

	cmd *exec.Cmd
}

func NewExecProcess(path string, args ...string) *ExecProcess {
	return &ExecProcess{Path: path, Args: args}
}

func (p *ExecProcess) Name() string {
	return p.Path
}

func (p *ExecProcess) Start(ctx context.Context) (Pipes, error) {
	if p.cmd != nil {
		return Pipes{}, fmt.Errorf("%s: %w", p.Path, ErrAlreadyStarted)
	}
	cmd := exec.CommandContext(ctx, p.Path, p.Args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Pipes{}, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Pipes{}, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Pipes{}, err
	}
	if err := cmd.Start(); err != nil {
		return Pipes{}, err
	}
	p.cmd = cmd

	return Pipes{Stdin: stdin, Stdout: stdout, Stderr: stderr}, nil
}

func (p *ExecProcess) Wait() error {
	if p.cmd == nil {
		return nil
	}
	return p.cmd.Wait()
}

func (p *ExecProcess) String() string {
	return strings.Join(append([]string{p.Path}, p.Args...), " ")
}
