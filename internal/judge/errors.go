package judge

import (
	"errors"
	"fmt"
)

// ErrUnsupportedLanguage is returned before any network call when the
// requested language is not in the supported set. It is a caller error.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// ErrPollTimeout is returned when the remote execution did not reach a
// terminal state within the polling budget. It is distinct from
// RemoteError so callers can tell "still running remotely" apart from
// "execution finished with an error".
var ErrPollTimeout = errors.New("timed out waiting for execution result")

// RemoteError indicates a transport failure or a malformed response
// from the remote execution service.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("judge: %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func remoteErrorf(op, format string, args ...any) *RemoteError {
	return &RemoteError{Op: op, Err: fmt.Errorf(format, args...)}
}
