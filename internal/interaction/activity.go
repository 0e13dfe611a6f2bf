package interaction

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/nzlov/adaptivehz/internal/shell"
)

// ActivityPoller tracks the top activity and reports window changes.
type ActivityPoller struct {
	runner     shell.Runner
	interval   time.Duration
	foreground *Foreground
	sink       Sink
	logger     *slog.Logger

	activity string
}

func NewActivityPoller(r shell.Runner, interval time.Duration, fg *Foreground, sink Sink, logger *slog.Logger) *ActivityPoller {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ActivityPoller{
		runner:     r,
		interval:   interval,
		foreground: fg,
		sink:       sink,
		logger:     logger.With("component", "activity"),
	}
}

func (p *ActivityPoller) Run(ctx context.Context) error {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.Poll(ctx)
		}
	}
}

// Poll reads the top activity once and emits WindowStateChanged if it moved.
func (p *ActivityPoller) Poll(ctx context.Context) {
	out, err := p.runner.Run(ctx, "dumpsys", "activity", "activities")
	if err != nil {
		p.logger.Warn("dumpsys activity failed", "error", err)
		return
	}
	a := TopActivity(bytes.NewReader(out))
	if a == "" || a == p.activity {
		return
	}
	p.logger.Debug("activity changed", "from", p.activity, "to", a)
	p.activity = a
	pkg := PackageOf(a)
	p.foreground.Set(pkg)
	p.sink.Notify(Signal{Kind: WindowStateChanged, Package: pkg, At: time.Now()})
}

// TopActivity returns the resumed activity component from a
// `dumpsys activity activities` dump, falling back to the first record.
func TopActivity(r io.Reader) string {
	var first string
	br := bufio.NewScanner(r)
	br.Buffer(make([]byte, 64*1024), 1024*1024)
	for br.Scan() {
		l := strings.TrimSpace(br.Text())
		c := recordComponent(l)
		if c == "" {
			continue
		}
		if strings.Contains(l, "ResumedActivity") {
			return c
		}
		if first == "" {
			first = c
		}
	}
	return first
}

// recordComponent pulls "pkg/.Activity" out of "ActivityRecord{hash u0 pkg/.Activity t12}".
func recordComponent(l string) string {
	s := strings.Index(l, "ActivityRecord{")
	if s < 0 {
		return ""
	}
	ls := strings.Fields(l[s+len("ActivityRecord{"):])
	if len(ls) < 3 {
		return ""
	}
	return strings.TrimSuffix(ls[2], "}")
}

func PackageOf(component string) string {
	if i := strings.Index(component, "/"); i >= 0 {
		return component[:i]
	}
	return component
}
