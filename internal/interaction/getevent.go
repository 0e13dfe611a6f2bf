package interaction

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/nzlov/adaptivehz/internal/shell"
)

// scrollCoalesce bounds how often pointer motion is turned into a signal.
const scrollCoalesce = 50 * time.Millisecond

// GetEvent streams `getevent -l` and turns touch reports into signals.
type GetEvent struct {
	streamer   shell.Streamer
	device     string
	foreground *Foreground
	sink       Sink
	logger     *slog.Logger
	now        func() time.Time

	lastScroll time.Time
}

func NewGetEvent(s shell.Streamer, device string, fg *Foreground, sink Sink, logger *slog.Logger) *GetEvent {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetEvent{
		streamer:   s,
		device:     device,
		foreground: fg,
		sink:       sink,
		logger:     logger.With("component", "getevent"),
		now:        time.Now,
	}
}

// Run blocks until getevent exits or ctx is cancelled.
func (g *GetEvent) Run(ctx context.Context) error {
	args := []string{"-l"}
	if g.device != "" {
		args = append(args, g.device)
	}
	out, wait, err := g.streamer.Stream(ctx, "getevent", args...)
	if err != nil {
		return err
	}
	g.logger.Info("capturing touch input", "device", g.device)
	scanErr := g.Consume(out)
	out.Close()
	werr := wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.Join(scanErr, werr)
}

// Consume reads getevent lines until EOF.
func (g *GetEvent) Consume(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		kind, ok := parseLine(sc.Text())
		if !ok {
			continue
		}
		now := g.now()
		if kind == ViewScrolled {
			if now.Sub(g.lastScroll) < scrollCoalesce {
				continue
			}
			g.lastScroll = now
		}
		g.sink.Notify(Signal{Kind: kind, Package: g.foreground.Get(), At: now})
	}
	return sc.Err()
}

// parseLine understands labelled getevent output, e.g.
//
//	/dev/input/event3: EV_KEY       BTN_TOUCH            DOWN
func parseLine(l string) (Kind, bool) {
	if i := strings.Index(l, ": "); i >= 0 && strings.HasPrefix(l, "/dev/") {
		l = l[i+2:]
	}
	f := strings.Fields(l)
	if len(f) < 3 {
		return Unknown, false
	}
	switch f[0] {
	case "EV_KEY":
		if f[1] != "BTN_TOUCH" {
			return Unknown, false
		}
		switch f[2] {
		case "DOWN":
			return TouchStart, true
		case "UP":
			return TouchEnd, true
		}
	case "EV_ABS":
		switch f[1] {
		case "ABS_MT_POSITION_X", "ABS_MT_POSITION_Y":
			return ViewScrolled, true
		}
	}
	return Unknown, false
}
