package sioclient

import (
	"errors"
	"fmt"
)

// ParseError reports a malformed text frame. The frame is dropped; no other
// state is affected.
type ParseError struct {
	Raw    string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "parse error: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError builds a ParseError for raw.
func NewParseError(raw, reason string, err error) *ParseError {
	return &ParseError{Raw: raw, Reason: reason, Err: err}
}

// SequencingError reports a protocol-level ordering violation: a binary frame
// with nothing pending, a binary header while one is pending, too many
// attachments, or an ack id collision. It is fatal to the current connection.
type SequencingError struct {
	Reason string
}

func (e *SequencingError) Error() string {
	return "sequencing error: " + e.Reason
}

// NewSequencingError formats a SequencingError.
func NewSequencingError(format string, args ...any) *SequencingError {
	return &SequencingError{Reason: fmt.Sprintf(format, args...)}
}

// IsParseError reports whether err is or wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsSequencingError reports whether err is or wraps a *SequencingError.
func IsSequencingError(err error) bool {
	var se *SequencingError
	return errors.As(err, &se)
}
