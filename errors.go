package main

import (
	"fmt"

	"github.com/pkg/errors"
)

// Exit codes. The negative values are the tool's historical statuses; the OS
// reports them modulo 256.
const (
	exitOK         = 0
	exitFatal      = 1
	exitResolution = -1
	exitArgument   = -2
)

// argumentError is a bad command line: unknown flag, bad value, bad --where.
type argumentError struct {
	err error
}

func (e *argumentError) Error() string { return e.err.Error() }
func (e *argumentError) Unwrap() error { return e.err }

// resolutionError means the host could not be mapped to a catalog: no core
// entry matched, or the identification helper is missing.
type resolutionError struct {
	msg string
}

func (e *resolutionError) Error() string { return e.msg }

func newResolutionError(format string, args ...any) error {
	return &resolutionError{msg: fmt.Sprintf(format, args...)}
}

// exitCode classifies err and returns the message to print, whether it
// belongs on stdout and the process exit code. Argument and resolution
// failures go to stdout.
func exitCode(err error) (msg string, toStdout bool, code int) {
	if err == nil {
		return "", false, exitOK
	}
	var argErr *argumentError
	if errors.As(err, &argErr) {
		return fmt.Sprintf("parse error: %s\n", argErr.err), true, exitArgument
	}
	var resErr *resolutionError
	if errors.As(err, &resErr) {
		return resErr.msg, true, exitResolution
	}
	return fmt.Sprintf("error: %v", err), false, exitFatal
}
