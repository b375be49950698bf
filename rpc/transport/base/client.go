package base

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/hRPC/rpc/common"
	"github.com/ValentinKolb/hRPC/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.TransportConfig) error
}

// -----------------------------------------------------------
// Stream client transport
// -----------------------------------------------------------

// clientTransport implements transport.ITransport over a single stream connection,
// independent of the specific transport medium (unix, tcp, etc.). A lost
// connection is redialed by the next Send or Receive.
type clientTransport struct {
	connector IClientConnector
	config    common.TransportConfig

	mu      sync.Mutex // protects conn and closed
	conn    *Conn
	closed  bool
	closeCh chan struct{}

	// dialMu serializes dialing, it is never held together with mu
	dialMu sync.Mutex
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new stream transport with the specified connector
func NewBaseClientTransport(connector IClientConnector, config common.TransportConfig) transport.ITransport {
	return &clientTransport{
		connector: connector,
		config:    config,
		closeCh:   make(chan struct{}),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.ITransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Open() error {
	_, err := t.current()
	return err
}

func (t *clientTransport) Send(data []byte) error {
	conn, err := t.current()
	if err != nil {
		return err
	}
	return conn.WriteFrame(EndpointResponse, data)
}

func (t *clientTransport) Receive() ([]byte, error) {
	conn, err := t.current()
	if err != nil {
		return nil, err
	}

	// both endpoints carry encoded messages, the codec tells them apart
	_, data, err := conn.ReadFrame()
	if err == nil {
		return data, nil
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, transport.ErrClosed
	}
	// a malformed frame leaves the stream out of sync, start over on a fresh connection
	if t.conn == conn {
		t.conn.Close()
		t.conn = nil
	}
	t.mu.Unlock()

	Logger.Warningf("Read from %s failed, reconnecting: %v", t.config.Endpoint, err)
	if _, rerr := t.current(); rerr != nil {
		Logger.Errorf("Failed to reconnect to %s: %v", t.config.Endpoint, rerr)
	}
	return nil, fmt.Errorf("error reading frame: %w", err)
}

func (t *clientTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	close(t.closeCh)

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// current returns the active connection and dials a new one if there is none
func (t *clientTransport) current() (*Conn, error) {
	if conn, err := t.active(); conn != nil || err != nil {
		return conn, err
	}

	t.dialMu.Lock()
	defer t.dialMu.Unlock()

	// another caller may have connected while we waited
	if conn, err := t.active(); conn != nil || err != nil {
		return conn, err
	}

	conn, err := t.dial()
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		conn.Close()
		return nil, transport.ErrClosed
	}
	t.conn = conn
	Logger.Infof("Connected to %s using %s transport", t.config.Endpoint, t.connector.GetName())
	return conn, nil
}

// active returns the current connection, nil if there is none
func (t *clientTransport) active() (*Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, transport.ErrClosed
	}
	return t.conn, nil
}

// dial connects to the endpoint with exponential backoff. Close interrupts the backoff.
func (t *clientTransport) dial() (*Conn, error) {
	attempts := t.config.RetryCount
	if attempts < 1 {
		attempts = 1
	}

	// Initial backoff duration in milliseconds
	backoffMs := 50

	var lastErr error
	for i := 0; i < attempts; i++ {
		conn, err := t.connector.Connect(t.config.Endpoint)
		if err == nil {
			if err = t.connector.UpgradeConnection(conn, t.config); err == nil {
				return NewConn(conn, t.config.WriteTimeout), nil
			}
			conn.Close()
		}

		lastErr = err
		Logger.Debugf("Connect attempt %d/%d to %s failed: %v", i+1, attempts, t.config.Endpoint, err)

		if i < attempts-1 {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			timer := time.NewTimer(time.Duration(jitter) * time.Millisecond)
			select {
			case <-t.closeCh:
				timer.Stop()
				return nil, transport.ErrClosed
			case <-timer.C:
			}
			backoffMs *= 2
		}
	}

	return nil, fmt.Errorf("failed to connect to %s after %d attempts: %w", t.config.Endpoint, attempts, lastErr)
}
