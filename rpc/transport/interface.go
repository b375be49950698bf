package transport

import "errors"

// ErrClosed is returned by Send and Receive once the transport was closed
var ErrClosed = errors.New("transport closed")

// --------------------------------------------------------------------------
// Host Transport
// --------------------------------------------------------------------------

// ITransport is the byte pipe between the host and the coprocessor.
// It carries already encoded messages and knows nothing about their content.
//
// Send may be called while another goroutine is blocked in Receive.
// Close must unblock a pending Receive.
type ITransport interface {
	// Open establishes the link. It is called once by the engine on init
	Open() error
	// Send transmits one encoded message as a single frame
	Send(data []byte) error
	// Receive blocks until one complete frame arrived and returns its data
	Receive() ([]byte, error)
	// Close releases the link. Further calls return ErrClosed
	Close() error
}
