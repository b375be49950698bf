package base

import (
	"net"
	"sync"
	"time"
)

// Conn is one framed connection. Writes from several goroutines are
// serialized, reads must come from a single goroutine.
type Conn struct {
	conn         net.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
	readBuf      []byte
}

// NewConn wraps an established connection. A writeTimeout of 0 disables write deadlines.
func NewConn(conn net.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{
		conn:         conn,
		writeTimeout: writeTimeout,
		readBuf:      make([]byte, tlvHeaderLen+endpointLen),
	}
}

// WriteFrame sends data to the given endpoint (EndpointResponse or EndpointEvent)
func (c *Conn) WriteFrame(endpoint string, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return writeFrame(c.conn, endpoint, data)
}

// ReadFrame blocks until the next frame arrived and returns its endpoint and data
func (c *Conn) ReadFrame() (string, []byte, error) {
	return readFrame(c.conn, c.readBuf)
}

// RemoteAddr returns the address of the peer
func (c *Conn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

// Close closes the underlying connection and unblocks a pending ReadFrame
func (c *Conn) Close() error {
	return c.conn.Close()
}
