package xmodem

import (
	"errors"
	"fmt"
)

// Error represents an XMODEM transfer failure
type Error struct {
	// Type is the error type
	Type ErrorType

	// Message is a human-readable error message
	Message string

	// Block is the number of the block in flight, or -1 if none
	Block int

	// Err is the underlying cause (I/O errors, context errors)
	Err error
}

// ErrorType categorizes XMODEM errors
type ErrorType int

const (
	// ErrReceiverConnectTimeout indicates no NAK arrived to start the transfer
	ErrReceiverConnectTimeout ErrorType = iota

	// ErrMaxRetryExceeded indicates a block was NAKed too many times
	ErrMaxRetryExceeded

	// ErrBlockAckTimeout indicates no response to a data block
	ErrBlockAckTimeout

	// ErrEOTAckTimeout indicates EOT was never acknowledged
	ErrEOTAckTimeout

	// ErrUnexpectedResponse indicates a byte other than ACK or NAK
	ErrUnexpectedResponse

	// ErrTransportIO indicates the transport failed to read or write
	ErrTransportIO

	// ErrSourceIO indicates the file source could not be read
	ErrSourceIO

	// ErrCancelled indicates the transfer was cancelled by the caller
	ErrCancelled
)

func (e *Error) Error() string {
	msg := fmt.Sprintf("xmodem %s", e.Type)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Block >= 0 {
		msg += fmt.Sprintf(" (block: %d)", e.Block)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Type, so that
// errors.Is(err, ErrEOTAckTimeoutError) matches any EOT timeout.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Type == t.Type
}

// Sentinel errors for errors.Is, one per ErrorType.
var (
	ErrReceiverConnectTimeoutError = NewError(ErrReceiverConnectTimeout, "")
	ErrMaxRetryExceededError       = NewError(ErrMaxRetryExceeded, "")
	ErrBlockAckTimeoutError        = NewError(ErrBlockAckTimeout, "")
	ErrEOTAckTimeoutError          = NewError(ErrEOTAckTimeout, "")
	ErrUnexpectedResponseError     = NewError(ErrUnexpectedResponse, "")
	ErrTransportIOError            = NewError(ErrTransportIO, "")
	ErrSourceIOError               = NewError(ErrSourceIO, "")
	ErrCancelledError              = NewError(ErrCancelled, "")
)

func (t ErrorType) String() string {
	switch t {
	case ErrReceiverConnectTimeout:
		return "receiver connect timeout"
	case ErrMaxRetryExceeded:
		return "max retries exceeded"
	case ErrBlockAckTimeout:
		return "block acknowledge timeout"
	case ErrEOTAckTimeout:
		return "EOT acknowledge timeout"
	case ErrUnexpectedResponse:
		return "unexpected response"
	case ErrTransportIO:
		return "transport I/O error"
	case ErrSourceIO:
		return "source I/O error"
	case ErrCancelled:
		return "cancelled"
	default:
		return "unknown error"
	}
}

// NewError creates a new XMODEM error
func NewError(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Block:   -1,
	}
}

// NewBlockError creates a new XMODEM error tied to a block number
func NewBlockError(errType ErrorType, message string, block uint8) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Block:   int(block),
	}
}

// wrapError creates an error carrying an underlying cause
func wrapError(errType ErrorType, message string, err error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Block:   -1,
		Err:     err,
	}
}

// TypeOf returns the ErrorType of an *Error anywhere in err's chain.
func TypeOf(err error) (ErrorType, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return 0, false
	}
	return e.Type, true
}

// IsTimeout checks if an error is one of the timeout errors
func IsTimeout(err error) bool {
	t, ok := TypeOf(err)
	if !ok {
		return false
	}
	switch t {
	case ErrReceiverConnectTimeout, ErrBlockAckTimeout, ErrEOTAckTimeout:
		return true
	}
	return false
}

// IsIO checks if an error came from the transport or the source
func IsIO(err error) bool {
	t, ok := TypeOf(err)
	return ok && (t == ErrTransportIO || t == ErrSourceIO)
}

// IsCancelled checks if an error indicates cancellation
func IsCancelled(err error) bool {
	t, ok := TypeOf(err)
	return ok && t == ErrCancelled
}
