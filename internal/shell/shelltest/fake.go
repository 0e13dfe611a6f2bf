// Package shelltest provides a scripted shell.Runner for tests.
package shelltest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

type result struct {
	out []byte
	err error
}

// Fake answers commands by their full command line.
type Fake struct {
	mu      sync.Mutex
	results map[string]result
	streams map[string]string
	calls   []string
}

func New() *Fake {
	return &Fake{results: map[string]result{}, streams: map[string]string{}}
}

// On scripts the reply for a command line such as "settings get secure refresh_rate_mode".
func (f *Fake) On(cmdline, out string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[cmdline] = result{out: []byte(out), err: err}
	return f
}

// OnStream scripts the stdout of a streamed command.
func (f *Fake) OnStream(cmdline, out string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams[cmdline] = out
	return f
}

func (f *Fake) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	line := join(name, args)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, line)
	r, ok := f.results[line]
	if !ok {
		return nil, fmt.Errorf("shelltest: unexpected command %q", line)
	}
	return r.out, r.err
}

func (f *Fake) Stream(_ context.Context, name string, args ...string) (io.ReadCloser, func() error, error) {
	line := join(name, args)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, line)
	out, ok := f.streams[line]
	if !ok {
		return nil, nil, fmt.Errorf("shelltest: unexpected stream %q", line)
	}
	return io.NopCloser(strings.NewReader(out)), func() error { return nil }, nil
}

// Calls returns every command line seen so far.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Count returns how many times cmdline ran.
func (f *Fake) Count(cmdline string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == cmdline {
			n++
		}
	}
	return n
}

func join(name string, args []string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}
