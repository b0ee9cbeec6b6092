// Package logging builds the structured logger shared by the kernel, the
// drivers and the demos.
package logging

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"

	"tickos/hal"
)

// Options controls the logger built by New.
type Options struct {
	Level logiface.Level
	// Timestamps adds a time field to every event. Boards without a real
	// time clock leave it off.
	Timestamps bool
}

// New returns a JSON logger whose events are written to out, one line each.
func New(out hal.Logger, opts Options) *logiface.Logger[logiface.Event] {
	timeField := ``
	if opts.Timestamps {
		timeField = `time`
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(
			stumpy.WithWriter(LineWriter{Out: out}),
			stumpy.WithTimeField(timeField),
		),
		stumpy.L.WithLevel(opts.Level),
	).Logger()
}

// LineWriter adapts a line-oriented hal.Logger to io.Writer.
type LineWriter struct {
	Out hal.Logger
}

func (w LineWriter) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		line := p
		if i := bytes.IndexByte(p, '\n'); i >= 0 {
			line, p = p[:i], p[i+1:]
		} else {
			p = nil
		}
		w.Out.WriteLineBytes(line)
	}
	return n, nil
}

var levels = map[string]logiface.Level{
	"disabled": logiface.LevelDisabled,
	"off":      logiface.LevelDisabled,
	"emerg":    logiface.LevelEmergency,
	"alert":    logiface.LevelAlert,
	"crit":     logiface.LevelCritical,
	"err":      logiface.LevelError,
	"error":    logiface.LevelError,
	"warning":  logiface.LevelWarning,
	"warn":     logiface.LevelWarning,
	"notice":   logiface.LevelNotice,
	"info":     logiface.LevelInformational,
	"debug":    logiface.LevelDebug,
	"trace":    logiface.LevelTrace,
}

// ParseLevel maps a syslog keyword (as printed by logiface.Level.String, plus
// a few common aliases) to a level.
func ParseLevel(s string) (logiface.Level, error) {
	if l, ok := levels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l, nil
	}
	return logiface.LevelDisabled, fmt.Errorf("unknown log level %q", s)
}
