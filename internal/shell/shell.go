// Package shell runs the platform binaries the daemon talks to
// (settings, getprop, dumpsys, getevent).
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// ErrCommandFailed wraps every non-zero exit.
var ErrCommandFailed = errors.New("shell: command failed")

// Runner executes a command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Streamer starts a long-running command and hands back its stdout.
// wait blocks until the process exits.
type Streamer interface {
	Stream(ctx context.Context, name string, args ...string) (out io.ReadCloser, wait func() error, err error)
}

// ExitError carries the stderr of a failed command.
type ExitError struct {
	Cmd    string
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", e.Cmd, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Cmd, e.Err, e.Stderr)
}

func (e *ExitError) Unwrap() []error { return []error{ErrCommandFailed, e.Err} }

// Exec is the os/exec backed Runner and Streamer.
type Exec struct{}

func (Exec) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(ctx, name, args...)
	c.Stdout = &stdout
	c.Stderr = &stderr
	if err := c.Run(); err != nil {
		return stdout.Bytes(), &ExitError{
			Cmd:    name + " " + strings.Join(args, " "),
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}
	// settings(1) reports SecurityException on stdout on some builds and exits 0
	return stdout.Bytes(), nil
}

func (Exec) Stream(ctx context.Context, name string, args ...string) (io.ReadCloser, func() error, error) {
	c := exec.CommandContext(ctx, name, args...)
	out, err := c.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := c.Start(); err != nil {
		return nil, nil, fmt.Errorf("start %s: %w", name, err)
	}
	return out, c.Wait, nil
}
