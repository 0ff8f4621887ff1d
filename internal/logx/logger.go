/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package logx

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"

	"github.com/axeda/agentembedded/internal/aeerr"
)

// Logger wraps a *logrus.Logger, giving every call site a narrow surface
// (WithField/WithFields/Entry-returning level methods) instead of exposing
// logrus directly, so the rest of the agent only depends on this package.
type Logger struct {
	l *logrus.Logger
}

// New builds a Logger at the given level. When colorConsole is true (the
// default for an interactive terminal), output goes through a colorable
// writer so level-specific ANSI colors render on Windows consoles too,
// matching the teacher's hookstdout convention.
func New(level Level, colorConsole bool) *Logger {
	l := logrus.New()

	if level == NilLevel {
		l.SetOutput(io.Discard)
	} else {
		var w io.Writer = os.Stdout
		if colorConsole {
			w = colorable.NewColorableStdout()
		}
		l.SetOutput(w)
		l.SetLevel(level.logrus())
	}

	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		DisableColors:   !colorConsole,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	if colorConsole {
		l.AddHook(&severityHighlightHook{})
	}

	return &Logger{l: l}
}

// severityHighlightHook bolds the message of warning-and-above entries so
// they stand out in a scrolling console, the one piece of the teacher's
// hookstdout coloring this agent needs beyond logrus's own level colors.
type severityHighlightHook struct{}

func (h *severityHighlightHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.WarnLevel, logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel}
}

func (h *severityHighlightHook) Fire(e *logrus.Entry) error {
	e.Message = color.New(color.Bold).Sprint(e.Message)
	return nil
}

// Entry starts a structured entry scoped to a component (e.g. "httptxn",
// "filetransfer") — the spec.md §7 log-subsystem category lives in the
// "family" field, set via WithError.
func (g *Logger) Entry(component string) *Entry {
	return &Entry{e: g.l.WithField("component", component)}
}

// Entry is a chain of fields accumulated before a terminal level call,
// mirroring the teacher's logger/entry fluent builder.
type Entry struct {
	e *logrus.Entry
}

func (e *Entry) WithField(key string, val any) *Entry {
	return &Entry{e: e.e.WithField(key, val)}
}

func (e *Entry) WithError(err error) *Entry {
	return &Entry{e: e.e.WithError(err).WithField("family", aeerr.Family(err))}
}

func (e *Entry) Debugf(format string, args ...any) { e.e.Debugf(format, args...) }
func (e *Entry) Infof(format string, args ...any)  { e.e.Infof(format, args...) }
func (e *Entry) Warnf(format string, args ...any)  { e.e.Warnf(format, args...) }
func (e *Entry) Errorf(format string, args ...any) { e.e.Errorf(format, args...) }

// Discard returns a Logger that drops everything, used in tests that don't
// care about log output.
func Discard() *Logger {
	return New(NilLevel, false)
}
