// Package display reads the panel's refresh rates out of `dumpsys display`.
package display

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/nzlov/adaptivehz/internal/shell"
)

var ErrNoRate = errors.New("display: refresh rate not reported")

var (
	modeFPS         = regexp.MustCompile(`fps=([0-9]+(?:\.[0-9]+)?)`)
	renderFrameRate = regexp.MustCompile(`renderFrameRate ([0-9]+(?:\.[0-9]+)?)`)
	legacyFPS       = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?) fps`)
)

type Probe struct {
	runner shell.Runner
}

func NewProbe(r shell.Runner) *Probe {
	return &Probe{runner: r}
}

// SupportedRates lists the refresh rate of every mode the default display
// advertises, in dumpsys order.
func (p *Probe) SupportedRates(ctx context.Context) ([]float64, error) {
	out, err := p.runner.Run(ctx, "dumpsys", "display")
	if err != nil {
		return nil, err
	}
	return ParseSupportedRates(bytes.NewReader(out)), nil
}

// CurrentRate is the rate the default display currently reports.
func (p *Probe) CurrentRate(ctx context.Context) (float64, error) {
	out, err := p.runner.Run(ctx, "dumpsys", "display")
	if err != nil {
		return 0, err
	}
	hz, ok := ParseCurrentRate(bytes.NewReader(out))
	if !ok {
		return 0, ErrNoRate
	}
	return hz, nil
}

// ParseSupportedRates collects the fps= values of the first supportedModes
// list in the dump.
func ParseSupportedRates(r io.Reader) []float64 {
	br := bufio.NewScanner(r)
	br.Buffer(make([]byte, 64*1024), 1024*1024)
	for br.Scan() {
		l := br.Text()
		i := strings.Index(l, "supportedModes")
		if i < 0 {
			continue
		}
		var rates []float64
		for _, m := range modeFPS.FindAllStringSubmatch(l[i:], -1) {
			if f, err := strconv.ParseFloat(m[1], 64); err == nil {
				rates = append(rates, f)
			}
		}
		if len(rates) > 0 {
			return rates
		}
	}
	return nil
}

// ParseCurrentRate reads the rate from the first DisplayInfo line.
func ParseCurrentRate(r io.Reader) (float64, bool) {
	br := bufio.NewScanner(r)
	br.Buffer(make([]byte, 64*1024), 1024*1024)
	for br.Scan() {
		l := br.Text()
		if !strings.Contains(l, "DisplayInfo{") {
			continue
		}
		if m := renderFrameRate.FindStringSubmatch(l); m != nil {
			if f, err := strconv.ParseFloat(m[1], 64); err == nil {
				return f, true
			}
		}
		if m := legacyFPS.FindStringSubmatch(l); m != nil {
			if f, err := strconv.ParseFloat(m[1], 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
