package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Exit codes.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// ExitError is an error that carries an exit code. An empty Message means
// the problem was already reported to the user.
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	switch {
	case e.Message != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	case e.Message != "":
		return e.Message
	case e.Cause != nil:
		return e.Cause.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// failure wraps cause as an already reported exit 1.
func failure(cause error) *ExitError {
	return &ExitError{Code: ExitFailure, Cause: cause}
}

// HandleExitError prints err (unless already reported) and exits with its
// code. It returns without exiting when err is nil.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	os.Exit(reportExit(os.Stderr, err))
}

// reportExit writes the user-facing part of err to w and returns the exit code.
func reportExit(w io.Writer, err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Message != "" {
			fmt.Fprintln(w, "Error:", exitErr.Error())
		}
		return exitErr.Code
	}
	fmt.Fprintln(w, "Error:", err.Error())
	return ExitFailure
}
