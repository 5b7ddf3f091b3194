package servopid

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrShortFrame      = errors.New("frame too short")
	ErrLengthMismatch  = errors.New("frame length mismatch")
	ErrMalformed       = errors.New("malformed field")
	ErrTokenCount      = errors.New("wrong token count")
	ErrInvalidIndex    = errors.New("invalid channel index")
	ErrEngineClosed    = errors.New("engine is closed")
	ErrNoTarget        = errors.New("no connection target")
)

// ParseError reports an inbound line that could not be interpreted.
type ParseError struct {
	Line  string // Raw line as received
	Field string // Field that failed (e.g., "count", "P")
	Err   error  // ErrMalformed, ErrTokenCount or ErrInvalidIndex
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("parse %q: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("parse %q: %s: %v", e.Line, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// CommError represents a transport-level failure.
type CommError struct {
	Op     string // Operation that failed (e.g., "open", "write")
	Target string // Connection target
	Err    error  // Underlying error
}

func (e *CommError) Error() string {
	return fmt.Sprintf("communication error during %s on %q: %v", e.Op, e.Target, e.Err)
}

func (e *CommError) Unwrap() error {
	return e.Err
}

// IsMalformed returns true if the error is a malformed-line parse failure.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed) || errors.Is(err, ErrTokenCount)
}

// IsInvalidIndex returns true if the error names a channel that does not exist.
func IsInvalidIndex(err error) bool {
	return errors.Is(err, ErrInvalidIndex)
}

// GetParseError extracts a ParseError from an error chain, if present.
func GetParseError(err error) (*ParseError, bool) {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return parseErr, true
	}
	return nil, false
}
