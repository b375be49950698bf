package slave

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/hRPC/rpc/codec"
	"github.com/ValentinKolb/hRPC/rpc/common"
	"github.com/ValentinKolb/hRPC/rpc/transport/base"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("slave")

// DefaultWorkersPerConn is used when SimulatorConfig.WorkersPerConn is not set
const DefaultWorkersPerConn = 4

// HandlerFunc serves one request and returns the response status and payload
type HandlerFunc func(call *Call) (common.StatusCode, []byte)

// Slave simulates the coprocessor side of the link. It answers requests with
// the registered handlers and emits events, one Session per connection.
type Slave struct {
	config   common.SimulatorConfig
	codec    codec.ICodec
	handlers *xsync.MapOf[common.MessageKind, HandlerFunc]
	sessions *xsync.MapOf[*Session, struct{}]
	device   *device
	stats    *stats

	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a simulator with all built-in handlers registered
func New(config common.SimulatorConfig, c codec.ICodec) *Slave {
	if config.WorkersPerConn <= 0 {
		config.WorkersPerConn = DefaultWorkersPerConn
	}

	s := &Slave{
		config:   config,
		codec:    c,
		handlers: xsync.NewMapOf[common.MessageKind, HandlerFunc](),
		sessions: xsync.NewMapOf[*Session, struct{}](),
		device:   newDevice(),
		stats:    newStats(),
		stopCh:   make(chan struct{}),
	}
	s.registerBuiltins()

	if config.StatsInterval > 0 {
		s.wg.Add(1)
		go s.logStats(config.StatsInterval)
	}

	Logger.Infof("Created simulator")
	Logger.Infof("%s", config.String())
	return s
}

// Handle registers h for kind, replacing a built-in handler
func (s *Slave) Handle(kind common.MessageKind, h HandlerFunc) {
	s.handlers.Store(kind, h)
}

// Serve runs the simulator on every connection accepted by l until l is closed
func (s *Slave) Serve(l *base.Listener) error {
	return l.Serve(s.ServeConn)
}

// ServeConn runs the simulator on one connection. It sends the ESPInit event,
// then answers requests until the connection fails. Up to WorkersPerConn
// requests are handled at once, so responses may be sent out of order.
func (s *Slave) ServeConn(conn *base.Conn) {
	sess := newSession(s, conn)
	s.sessions.Store(sess, struct{}{})

	var wg sync.WaitGroup
	defer func() {
		// closing first releases workers waiting out the response delay
		sess.close()
		wg.Wait()
		s.sessions.Delete(sess)
	}()

	if err := sess.Emit(common.EventESPInit, nil); err != nil {
		Logger.Errorf("Failed to send init event to %s: %v", conn.RemoteAddr(), err)
		return
	}
	if s.config.Heartbeat > 0 {
		sess.startHeartbeat(s.config.Heartbeat)
	}

	// the buffered channel acts as a counting semaphore
	workers := make(chan struct{}, s.config.WorkersPerConn)

	for {
		_, data, err := conn.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
				Logger.Infof("Connection %s closed", conn.RemoteAddr())
			} else {
				Logger.Errorf("Failed to read from %s: %v", conn.RemoteAddr(), err)
			}
			return
		}

		var msg common.Message
		if err := s.codec.Deserialize(data, &msg); err != nil {
			s.stats.malformed.Mark(1)
			Logger.Warningf("Dropping undecodable request (%d bytes): %v", len(data), err)
			continue
		}
		if msg.MsgType != common.MsgTypeRequest {
			s.stats.malformed.Mark(1)
			Logger.Warningf("Dropping %s message, only requests are served", msg.MsgType)
			continue
		}

		workers <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				<-workers
				wg.Done()
			}()
			sess.handle(msg)
		}()
	}
}

// Close stops heartbeats and metrics logging. Connections are owned by their
// listener or caller and are not closed.
func (s *Slave) Close() {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.sessions.Range(func(sess *Session, _ struct{}) bool {
			sess.stopHeartbeat()
			return true
		})
		s.wg.Wait()
		s.stats.logAll()
		s.stats.registry.UnregisterAll()
		Logger.Infof("Simulator stopped")
	})
}

// Count returns the number of requests of kind served so far
func (s *Slave) Count(kind common.MessageKind) int64 {
	return s.stats.requests(kind).Count()
}

// logStats periodically logs the simulator metrics
func (s *Slave) logStats(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.stats.logAll()
		}
	}
}
