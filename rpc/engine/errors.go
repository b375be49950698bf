package engine

import "errors"

// Hard errors of the engine API. Every other outcome of a request is
// reported as a common.Response with a status code.
var (
	// ErrTableFull is returned when the transaction table of the request mode has no free slot
	ErrTableFull = errors.New("transaction table full")
	// ErrNoSuchTransaction is returned when no pending request matches a correlation id
	ErrNoSuchTransaction = errors.New("no such transaction")
	// ErrNotReady is returned for submissions while the engine is not initialized
	ErrNotReady = errors.New("engine not ready")
	// ErrAlreadyInitialized is returned by a second Init
	ErrAlreadyInitialized = errors.New("engine already initialized")
	// ErrClosed is returned by Init after Deinit, an engine cannot be restarted
	ErrClosed = errors.New("engine closed")
	// ErrUnknownEvent is returned for event kinds outside the known range
	ErrUnknownEvent = errors.New("unknown event kind")
	// ErrNilCallback is returned when a callback is required but nil was given
	ErrNilCallback = errors.New("callback must not be nil")
	// ErrInvalidKind is returned for requests with an unknown message kind
	ErrInvalidKind = errors.New("invalid message kind")

	// errDuplicateID is returned by the tables when an id is still in use
	errDuplicateID = errors.New("correlation id in use")
)
