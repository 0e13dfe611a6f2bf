// Package interaction produces the user-interaction signals that drive the
// refresh rate: raw touches from the input subsystem, foreground window
// changes, and events pushed by an accessibility bridge.
package interaction

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

type Kind int

const (
	Unknown Kind = iota
	TouchStart
	TouchEnd
	ViewScrolled
	ViewClicked
	ViewFocused
	WindowContentChanged
	WindowStateChanged
)

var kindNames = map[Kind]string{
	TouchStart:           "touch_start",
	TouchEnd:             "touch_end",
	ViewScrolled:         "view_scrolled",
	ViewClicked:          "view_clicked",
	ViewFocused:          "view_focused",
	WindowContentChanged: "window_content_changed",
	WindowStateChanged:   "window_state_changed",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Forces reports whether the kind re-requests the maximum rate even when it
// is already requested. Only the start of a touch does, to hide input latency.
func (k Kind) Forces() bool { return k == TouchStart }

// ParseKind accepts the snake_case names and the Android TYPE_* constant names.
func ParseKind(s string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(s))
	n = strings.TrimPrefix(n, "type_")
	n = strings.Replace(n, "touch_interaction_", "touch_", 1)
	for k, name := range kindNames {
		if name == n {
			return k, nil
		}
	}
	return Unknown, fmt.Errorf("unknown signal kind %q", s)
}

type Signal struct {
	Kind    Kind
	Package string
	At      time.Time
}

// Sink receives signals. Implementations must not block for long.
type Sink interface {
	Notify(Signal)
}

type SinkFunc func(Signal)

func (f SinkFunc) Notify(s Signal) { f(s) }

// Foreground holds the package of the current top activity. Raw input events
// carry no package of their own and are attributed to it.
type Foreground struct {
	v atomic.Value
}

func (f *Foreground) Set(pkg string) { f.v.Store(pkg) }

func (f *Foreground) Get() string {
	if s, ok := f.v.Load().(string); ok {
		return s
	}
	return ""
}
