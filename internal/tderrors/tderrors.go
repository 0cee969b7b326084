// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tderrors implements the error-kind taxonomy of spec §7 and the
// fixed exit-code table of spec §6.2. Lower layers return plain wrapped
// errors (github.com/pkg/errors, as the teacher does throughout); command
// wrappers in cmd/tanmidock pass them to ExitCodeFor, which follows the
// Cause chain to the first *Error and looks up its Kind to pick an exit code.
package tderrors

import (
	"fmt"
	"strings"
)

// Kind identifies one of the taxonomy's error kinds. It intentionally names
// kinds, not Go types: several Kinds may share a struct shape.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotInitialized
	KindUsageError
	KindConfigError
	KindLockHeld
	KindIoError
	KindPermissionDenied
	KindPathUnsafe
	KindAlreadyInStore
	KindCommitMismatch
	KindIncompatibleStore
	KindDownloaderMissing
	KindDownloaderFailed
	KindManifestInvalid
	KindNestedConfigMissing
	KindDanglingLink
	KindTransactionPending
)

// ExitCode is one of the fixed codes from spec §6.2.
type ExitCode int

const (
	ExitSuccess            ExitCode = 0
	ExitGeneralError       ExitCode = 1
	ExitUsage              ExitCode = 2
	ExitNotInitialized     ExitCode = 10
	ExitLockHeld           ExitCode = 11
	ExitDataFormatError    ExitCode = 65
	ExitInputNotFound      ExitCode = 66
	ExitServiceUnavailable ExitCode = 69
	ExitInternalBug        ExitCode = 70
	ExitOSError            ExitCode = 71
	ExitCannotCreate       ExitCode = 73
	ExitIOError            ExitCode = 74
	ExitPermission         ExitCode = 77
	ExitConfiguration      ExitCode = 78
	ExitSIGINT             ExitCode = 130
	ExitSIGTERM            ExitCode = 143
)

// exitCodes maps each Kind to its fixed exit code.
var exitCodes = map[Kind]ExitCode{
	KindNotInitialized:      ExitNotInitialized,
	KindUsageError:          ExitUsage,
	KindConfigError:         ExitConfiguration,
	KindLockHeld:            ExitLockHeld,
	KindIoError:             ExitIOError,
	KindPermissionDenied:    ExitPermission,
	KindPathUnsafe:          ExitGeneralError,
	KindAlreadyInStore:      ExitGeneralError,
	KindCommitMismatch:      ExitGeneralError,
	KindIncompatibleStore:   ExitDataFormatError,
	KindDownloaderMissing:   ExitServiceUnavailable,
	KindDownloaderFailed:    ExitServiceUnavailable,
	KindManifestInvalid:     ExitDataFormatError,
	KindNestedConfigMissing: ExitInputNotFound,
	KindDanglingLink:        ExitGeneralError,
	KindTransactionPending:  ExitGeneralError,
}

// substringCodes maps common error substrings to exit codes, for errors
// that originate outside the taxonomy (stdlib os/io errors that were never
// wrapped into an *Error). Checked only after a Kind lookup has failed.
var substringCodes = []struct {
	substr string
	code   ExitCode
}{
	{"permission denied", ExitPermission},
	{"no such file or directory", ExitInputNotFound},
	{"file exists", ExitCannotCreate},
	{"read-only file system", ExitIOError},
	{"no space left on device", ExitIOError},
	{"invalid character", ExitDataFormatError},
	{"unexpected end of JSON input", ExitDataFormatError},
}

// Error is the taxonomy's concrete error type. It wraps an underlying cause
// (possibly nil) and carries enough structure for the exit-code mapping and
// for a one-line, severity-prefixed message.
type Error struct {
	Kind    Kind
	Message string
	Path    string
	Err     error

	// Structured payload for kinds that carry more than a path.
	Expected string // CommitMismatch
	Actual   string // CommitMismatch
	LibName  string // AlreadyInStore
	Commit   string // AlreadyInStore, TransactionPending holds tx id in Path
	Plat     string // AlreadyInStore
	Version  string // IncompatibleStore
	Code     int    // DownloaderFailed exit code
	Stderr   string // DownloaderFailed captured stderr
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap supports errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Err }

// Cause supports github.com/pkg/errors.Cause, used throughout the codebase.
func (e *Error) Cause() error { return e.Err }

func (k Kind) String() string {
	switch k {
	case KindNotInitialized:
		return "not initialized"
	case KindUsageError:
		return "usage error"
	case KindConfigError:
		return "configuration error"
	case KindLockHeld:
		return "another command is running, retry later"
	case KindIoError:
		return "I/O error"
	case KindPermissionDenied:
		return "permission denied"
	case KindPathUnsafe:
		return "unsafe path"
	case KindAlreadyInStore:
		return "already in store"
	case KindCommitMismatch:
		return "commit mismatch"
	case KindIncompatibleStore:
		return "incompatible store layout"
	case KindDownloaderMissing:
		return "downloader not available"
	case KindDownloaderFailed:
		return "downloader failed"
	case KindManifestInvalid:
		return "invalid manifest"
	case KindNestedConfigMissing:
		return "nested config missing"
	case KindDanglingLink:
		return "dangling link"
	case KindTransactionPending:
		return "transaction pending"
	default:
		return "error"
	}
}

// New constructs a taxonomy error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs a taxonomy error wrapping cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// NotInitialized reports that the TanmiDock home has not been initialized.
func NotInitialized() *Error {
	return New(KindNotInitialized, "tanmi-dock home is not initialized; run `tanmidock init`")
}

// LockHeld reports that the global operation lock could not be acquired.
func LockHeld() *Error {
	return New(KindLockHeld, "another command is running, retry later")
}

// AlreadyInStore reports an attempted absorb of an (L, C, P) already
// materialized in the Store.
func AlreadyInStore(lib, commit, plat string) *Error {
	return &Error{
		Kind:    KindAlreadyInStore,
		Message: fmt.Sprintf("%s@%s/%s is already in the store", lib, commit, plat),
		LibName: lib, Commit: commit, Plat: plat,
	}
}

// CommitMismatch reports that a local working copy's commit does not match
// the declared commit.
func CommitMismatch(expected, actual string) *Error {
	return &Error{
		Kind:     KindCommitMismatch,
		Message:  fmt.Sprintf("expected commit %s, found %s", expected, actual),
		Expected: expected, Actual: actual,
	}
}

// IncompatibleStore reports a store layout from an old, incompatible
// version (spec: v0.5's double-nested platform directories).
func IncompatibleStore(version string) *Error {
	return &Error{
		Kind:    KindIncompatibleStore,
		Message: fmt.Sprintf("store layout version %q is incompatible; re-link with a fresh store", version),
		Version: version,
	}
}

// DownloaderFailed reports a non-zero exit from the codepac subprocess.
func DownloaderFailed(code int, stderr string) *Error {
	return &Error{
		Kind:    KindDownloaderFailed,
		Message: fmt.Sprintf("codepac exited with status %d", code),
		Code:    code, Stderr: stderr,
	}
}

// ManifestInvalid reports a manifest parse or validation failure.
func ManifestInvalid(path, reason string) *Error {
	return &Error{Kind: KindManifestInvalid, Message: reason, Path: path}
}

// NestedConfigMissing reports a --disable_action nested install referencing
// a sub-config that cannot be found.
func NestedConfigMissing(name string) *Error {
	return &Error{Kind: KindNestedConfigMissing, Message: fmt.Sprintf("optional config %q not found", name), Path: name}
}

// DanglingLink reports a symlink whose target no longer exists.
func DanglingLink(path string) *Error {
	return &Error{Kind: KindDanglingLink, Message: "dangling link", Path: path}
}

// TransactionPending reports a transaction log left behind by a crashed
// command.
func TransactionPending(id string) *Error {
	return &Error{Kind: KindTransactionPending, Message: fmt.Sprintf("transaction %s is pending from a previous run", id), Path: id}
}

// PathUnsafe reports a path rejected by the path-safety policy.
func PathUnsafe(path, reason string) *Error {
	return &Error{Kind: KindPathUnsafe, Message: reason, Path: path}
}

// ExitCodeFor maps err to its fixed exit code (spec §6.2). Errors that were
// never wrapped into an *Error fall back to substring matching against their
// message, and finally to ExitGeneralError.
func ExitCodeFor(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	var te *Error
	for e := err; e != nil; {
		if x, ok := e.(*Error); ok {
			te = x
			break
		}
		c, ok := e.(interface{ Cause() error })
		if !ok {
			break
		}
		e = c.Cause()
	}
	if te != nil {
		if code, ok := exitCodes[te.Kind]; ok {
			return code
		}
	}

	msg := err.Error()
	for _, sc := range substringCodes {
		if strings.Contains(msg, sc.substr) {
			return sc.code
		}
	}
	return ExitGeneralError
}

// Severity is one of the fixed message prefixes from spec §7.
type Severity string

const (
	SeverityOK   Severity = "[ok]"
	SeverityWarn Severity = "[warn]"
	SeverityErr  Severity = "[err]"
	SeverityInfo Severity = "[info]"
)

// Format renders a user-visible message with its severity prefix.
func Format(sev Severity, format string, args ...interface{}) string {
	return fmt.Sprintf("%s %s", sev, fmt.Sprintf(format, args...))
}
