// Package rerr provides the structured error taxonomy for the rendezvous
// daemon and client, mirroring the error kinds named in the design's error
// handling section: ConfigError, BinderError, SocketError, FrameError,
// DecodeError, StoreError, CallbackError.
package rerr

import (
	"errors"
	"fmt"
)

// Category identifies which part of the system raised an error.
type Category string

const (
	// CategoryConfig indicates a missing/empty mesh_secret or unparsable
	// config value. Fatal at daemon startup.
	CategoryConfig Category = "config"
	// CategoryBinder indicates the address binder failed to add/remove an
	// address. Per-slot, non-fatal.
	CategoryBinder Category = "binder"
	// CategorySocket indicates a UDP bind or send failure. Per-slot, non-fatal.
	CategorySocket Category = "socket"
	// CategoryFrame indicates a structurally malformed inbound datagram
	// (too short, or a declared signature length exceeding the buffer).
	CategoryFrame Category = "frame"
	// CategoryDecode indicates the descriptor payload was not valid UTF-8 JSON.
	CategoryDecode Category = "decode"
	// CategoryStore indicates a peer descriptor could not be written to disk.
	CategoryStore Category = "store"
	// CategoryCallback indicates the peer callback exited non-zero or timed out.
	CategoryCallback Category = "callback"
)

// RendezvousError is a structured error carrying a category and whether the
// caller should treat this occurrence as retryable (i.e. the slot engine
// should continue rather than abort).
type RendezvousError struct {
	Category   Category
	Message    string
	Underlying error
	Retryable  bool
}

// Error implements the error interface.
func (e *RendezvousError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s] %s", e.Category, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *RendezvousError) Unwrap() error {
	return e.Underlying
}

// Is implements category-based error comparison so callers can use
// errors.Is(err, &RendezvousError{Category: CategoryBinder}).
func (e *RendezvousError) Is(target error) bool {
	t, ok := target.(*RendezvousError)
	if !ok {
		return false
	}
	return e.Category == t.Category
}

func newErr(cat Category, retryable bool, message string, underlying error) *RendezvousError {
	return &RendezvousError{Category: cat, Message: message, Underlying: underlying, Retryable: retryable}
}

// Config wraps a fatal configuration error.
func Config(message string, err error) *RendezvousError {
	return newErr(CategoryConfig, false, message, err)
}

// Binder wraps a per-slot address-binding failure.
func Binder(message string, err error) *RendezvousError {
	return newErr(CategoryBinder, true, message, err)
}

// Socket wraps a per-slot UDP bind/send failure.
func Socket(message string, err error) *RendezvousError {
	return newErr(CategorySocket, true, message, err)
}

// Frame wraps a structurally malformed inbound datagram.
func Frame(message string) *RendezvousError {
	return newErr(CategoryFrame, false, message, nil)
}

// Decode wraps a descriptor payload that failed to parse as JSON.
func Decode(message string, err error) *RendezvousError {
	return newErr(CategoryDecode, false, message, err)
}

// Store wraps a peer-persistence failure; the peer is dropped for this
// sighting only and may be retried the next time it is heard from.
func Store(message string, err error) *RendezvousError {
	return newErr(CategoryStore, true, message, err)
}

// Callback wraps a peer-callback non-zero-exit or timeout. The peer stays
// in known_peers regardless.
func Callback(message string, err error) *RendezvousError {
	return newErr(CategoryCallback, true, message, err)
}

// IsRetryable reports whether err (or a wrapped RendezvousError within it)
// is retryable.
func IsRetryable(err error) bool {
	var re *RendezvousError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// GetCategory returns the category of err, or CategoryConfig if err does not
// wrap a RendezvousError (configuration errors are the only unconditionally
// fatal category, so this is a conservative default).
func GetCategory(err error) Category {
	var re *RendezvousError
	if errors.As(err, &re) {
		return re.Category
	}
	return CategoryConfig
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	var re *RendezvousError
	if errors.As(err, &re) {
		return re.Category == cat
	}
	return false
}
