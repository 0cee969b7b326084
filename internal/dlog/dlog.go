// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dlog generalizes the teacher's minimal io.Writer-wrapping
// Logger (log/logger.go) into the leveled, severity-prefixed logger spec §7
// requires ("[ok]", "[warn]", "[err]", "[info]"), honoring the DEBUG and
// VERBOSE environment variables from spec §6.3. Colorized output is
// explicitly out of scope (spec §1); this logger only ever writes plain
// text.
package dlog

import (
	"fmt"
	"io"
	"os"

	"github.com/tanmi-dock/tanmidock/internal/tderrors"
)

// Logger is a minimal wrapper around an io.Writer, in the teacher's style,
// extended with the severity-prefixed helpers the spec requires.
type Logger struct {
	out     io.Writer
	err     io.Writer
	debug   bool
	verbose bool
}

// New returns a Logger writing plain/info/ok/verbose output to out and
// warn/err/debug output to errOut.
func New(out, errOut io.Writer) *Logger {
	return &Logger{
		out:     out,
		err:     errOut,
		debug:   envTruthy("DEBUG"),
		verbose: envTruthy("VERBOSE"),
	}
}

// Default returns a Logger writing to os.Stdout/os.Stderr.
func Default() *Logger { return New(os.Stdout, os.Stderr) }

func envTruthy(name string) bool {
	v := os.Getenv(name)
	return v != "" && v != "0" && v != "false"
}

// Logln logs a line with no prefix, in the teacher's original style.
func (l *Logger) Logln(args ...interface{}) {
	fmt.Fprintln(l.out, args...)
}

// Logf logs a formatted string with no prefix.
func (l *Logger) Logf(format string, args ...interface{}) {
	fmt.Fprintf(l.out, format, args...)
}

// OK logs a line prefixed [ok].
func (l *Logger) OK(format string, args ...interface{}) {
	fmt.Fprintln(l.out, tderrors.Format(tderrors.SeverityOK, format, args...))
}

// Warn logs a line prefixed [warn].
func (l *Logger) Warn(format string, args ...interface{}) {
	fmt.Fprintln(l.err, tderrors.Format(tderrors.SeverityWarn, format, args...))
}

// Err logs a line prefixed [err].
func (l *Logger) Err(format string, args ...interface{}) {
	fmt.Fprintln(l.err, tderrors.Format(tderrors.SeverityErr, format, args...))
}

// Info logs a line prefixed [info].
func (l *Logger) Info(format string, args ...interface{}) {
	fmt.Fprintln(l.out, tderrors.Format(tderrors.SeverityInfo, format, args...))
}

// Debug logs only when TANMI_DOCK's DEBUG env var is truthy.
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	fmt.Fprintln(l.err, "[debug] "+fmt.Sprintf(format, args...))
}

// Verbose logs only when -v/VERBOSE is enabled.
func (l *Logger) Verbose(format string, args ...interface{}) {
	if !l.verbose {
		return
	}
	fmt.Fprintln(l.out, fmt.Sprintf(format, args...))
}

// SetVerbose allows a command's -v flag to force verbose output regardless
// of the environment variable.
func (l *Logger) SetVerbose(v bool) { l.verbose = l.verbose || v }
