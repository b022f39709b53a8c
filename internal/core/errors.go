package core

import (
	"errors"
	"fmt"

	"venuecast/internal/adapters/sessiondb"
)

// CLI exit codes.
const (
	ExitOK       = 0
	ExitRuntime  = 1
	ExitUsage    = 2
	ExitControl  = 3
	ExitNotFound = 4
)

// CLIError carries a user-visible message and exit code.
type CLIError struct {
	Code int
	Msg  string
	Err  error
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// WrapError creates a CLIError with an underlying error.
func WrapError(code int, msg string, err error) *CLIError {
	return &CLIError{Code: code, Msg: msg, Err: err}
}

// ErrorForStore maps session store errors to CLI errors.
func ErrorForStore(msg string, err error) *CLIError {
	switch {
	case errors.Is(err, sessiondb.ErrControlHeld):
		return &CLIError{Code: ExitControl, Msg: "another client took control first", Err: err}
	case errors.Is(err, sessiondb.ErrNotController):
		return &CLIError{Code: ExitControl, Msg: "not the current controller: run 'venuectl take' first", Err: err}
	case errors.Is(err, sessiondb.ErrSessionMissing):
		return &CLIError{Code: ExitNotFound, Msg: "no playback session for account", Err: err}
	case errors.Is(err, sessiondb.ErrAccountMissing):
		return &CLIError{Code: ExitNotFound, Msg: "account not found", Err: err}
	default:
		return &CLIError{Code: ExitRuntime, Msg: msg, Err: err}
	}
}

// ExitCode returns the CLI exit code from error.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}
	return ExitRuntime
}
