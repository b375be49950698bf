package base

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/hRPC/rpc/common"
	"github.com/puzpuzpuz/xsync/v3"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific listener operations
type IServerConnector interface {
	// Listen creates a listener on the endpoint and returns it
	Listen(endpoint string) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.TransportConfig) error
}

// ConnHandler serves one accepted connection. The connection is closed when it returns.
type ConnHandler func(conn *Conn)

// -----------------------------------------------------------
// Listener
// -----------------------------------------------------------

// Listener accepts framed connections on the coprocessor side
type Listener struct {
	connector IServerConnector
	config    common.TransportConfig
	listener  net.Listener
	conns     *xsync.MapOf[*Conn, struct{}]
	wg        sync.WaitGroup

	mu     sync.Mutex // orders wg.Add against Close
	closed atomic.Bool
}

// NewListener creates a new listener with the specified connector
func NewListener(connector IServerConnector, config common.TransportConfig) *Listener {
	return &Listener{
		connector: connector,
		config:    config,
		conns:     xsync.NewMapOf[*Conn, struct{}](),
	}
}

// Listen binds the endpoint and returns the bound address
func (l *Listener) Listen() (net.Addr, error) {
	listener, err := l.connector.Listen(l.config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}
	l.listener = listener

	Logger.Infof("Listening for %s connections on %s", l.connector.GetName(), listener.Addr())
	return listener.Addr(), nil
}

// Serve accepts connections until Close is called and runs handler for
// each of them in its own goroutine. It returns nil after Close.
func (l *Listener) Serve(handler ConnHandler) error {
	if l.listener == nil {
		return errors.New("listener not bound, call Listen first")
	}

	for {
		netConn, err := l.listener.Accept()
		if err != nil {
			if l.closed.Load() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			Logger.Errorf("Accept error: %v", err)
			continue
		}

		if err := l.connector.UpgradeConnection(netConn, l.config); err != nil {
			Logger.Errorf("Failed to upgrade connection from %s: %v", netConn.RemoteAddr(), err)
			netConn.Close()
			continue
		}

		conn := NewConn(netConn, l.config.WriteTimeout)

		l.mu.Lock()
		if l.closed.Load() {
			l.mu.Unlock()
			conn.Close()
			return nil
		}
		l.conns.Store(conn, struct{}{})
		l.wg.Add(1)
		l.mu.Unlock()

		go func() {
			defer func() {
				l.conns.Delete(conn)
				conn.Close()
				l.wg.Done()
			}()
			Logger.Infof("Accepted connection from %s", conn.RemoteAddr())
			handler(conn)
		}()
	}
}

// Close stops accepting, closes all open connections and waits for their handlers
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed.Load() {
		l.mu.Unlock()
		return nil
	}
	l.closed.Store(true)
	l.mu.Unlock()

	var err error
	if l.listener != nil {
		err = l.listener.Close()
	}

	l.conns.Range(func(conn *Conn, _ struct{}) bool {
		conn.Close()
		return true
	})
	l.wg.Wait()
	return err
}
