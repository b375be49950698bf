package pipe

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/hRPC/rpc/common"
	"github.com/ValentinKolb/hRPC/rpc/transport"
	"github.com/ValentinKolb/hRPC/rpc/transport/base"
)

// clientConnector hands out the host end of an in-memory pipe exactly once
type clientConnector struct {
	mu   sync.Mutex
	conn net.Conn
}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "pipe"
}

func (c *clientConnector) Connect(string) (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, errors.New("pipe cannot be redialed")
	}
	conn := c.conn
	c.conn = nil
	return conn, nil
}

func (c *clientConnector) UpgradeConnection(net.Conn, common.TransportConfig) error {
	return nil
}

// --------------------------------------------------------------------------
// Factory Method
// --------------------------------------------------------------------------

// New creates a connected in-memory link. The host end is a transport.ITransport
// for the engine, the coprocessor end is a framed connection for the simulator.
// A writeTimeout of 0 disables write deadlines.
func New(writeTimeout time.Duration) (transport.ITransport, *base.Conn) {
	hostEnd, slaveEnd := net.Pipe()

	host := base.NewBaseClientTransport(&clientConnector{conn: hostEnd}, common.TransportConfig{
		Endpoint:     "pipe",
		WriteTimeout: writeTimeout,
		RetryCount:   1,
	})
	return host, base.NewConn(slaveEnd, writeTimeout)
}
