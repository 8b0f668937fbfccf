package server

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors for response and server conditions.
var (
	// Stop is passed to next (or returned by a suspending handler) to end
	// the chain early without an error.
	Stop = errors.New("server: stop")

	// ErrHeadersSent is returned when the status or headers are changed
	// after they were written.
	ErrHeadersSent = errors.New("server: headers already sent")

	// ErrConnectionClosed is returned by writes on a response whose
	// connection closed or timed out.
	ErrConnectionClosed = errors.New("server: connection closed")

	// ErrServerClosed is returned by Listen and Serve after Shutdown or Close.
	ErrServerClosed = errors.New("server: closed")
)

// Diagnostic messages for chain faults.
const (
	msgNextCalledTwice = "next shouldn't be called more than once"
	msgChainExhausted  = "reached end of handler chain without writing a response"
)

// ProgrammerError reports a setup mistake, such as registering a value that
// is not a handler. Registration functions panic with it.
type ProgrammerError struct {
	Op      string // Operation that was misused
	Message string
}

// Error returns the error message.
func (e *ProgrammerError) Error() string {
	return fmt.Sprintf("server: %s: %s", e.Op, e.Message)
}

func programmerError(op, format string, args ...any) *ProgrammerError {
	return &ProgrammerError{Op: op, Message: fmt.Sprintf(format, args...)}
}
