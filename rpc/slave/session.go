package slave

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/hRPC/rpc/common"
	"github.com/ValentinKolb/hRPC/rpc/transport/base"
)

// Call is one request handed to a HandlerFunc
type Call struct {
	Session *Session
	Kind    common.MessageKind
	UID     uint32
	Payload []byte

	after []common.Message
}

// EmitAfterReply queues an event that is sent right after the response of this call
func (c *Call) EmitAfterReply(kind common.EventKind, payload []byte) {
	c.after = append(c.after, common.NewEventMessage(kind, payload))
}

// Session is the simulator state of one connection
type Session struct {
	slave *Slave
	conn  *base.Conn
	done  chan struct{}
	once  sync.Once

	// hbMu serializes starting and stopping the heartbeat
	hbMu   sync.Mutex
	hbStop chan struct{}
	hbWg   sync.WaitGroup
	beats  atomic.Uint32
}

func newSession(s *Slave, conn *base.Conn) *Session {
	return &Session{
		slave: s,
		conn:  conn,
		done:  make(chan struct{}),
	}
}

// Emit sends an event to the host
func (sess *Session) Emit(kind common.EventKind, payload []byte) error {
	if err := sess.write(base.EndpointEvent, common.NewEventMessage(kind, payload)); err != nil {
		return err
	}
	sess.slave.stats.events.Mark(1)
	Logger.Debugf("Sent %s event to %s", kind, sess.conn.RemoteAddr())
	return nil
}

// handle runs the handler of req and writes the response
func (sess *Session) handle(req common.Message) {
	start := time.Now()
	kind := common.MessageKind(req.Kind)

	if d := sess.slave.config.ResponseDelay; d > 0 {
		select {
		case <-time.After(d):
		case <-sess.done:
			return
		}
	}

	call := &Call{Session: sess, Kind: kind, UID: req.UID, Payload: req.Payload}
	status, payload := common.StatusUnsupported, []byte(nil)
	if h, ok := sess.slave.handlers.Load(kind); ok {
		status, payload = h(call)
	} else {
		sess.slave.stats.unsupported.Mark(1)
		Logger.Warningf("No handler for %s request uid=%d", kind, req.UID)
	}

	sess.slave.stats.requests(kind).Mark(1)
	sess.slave.stats.handled.UpdateSince(start)

	resp := common.NewResponseMessage(kind, req.UID, status, payload)
	if err := sess.write(base.EndpointResponse, resp); err != nil {
		Logger.Errorf("Failed to send %s response uid=%d: %v", kind, req.UID, err)
		return
	}
	Logger.Debugf("Answered %s request uid=%d with %s in %s", kind, req.UID, status, time.Since(start))

	for _, evt := range call.after {
		if err := sess.write(base.EndpointEvent, evt); err != nil {
			Logger.Errorf("Failed to send %s event: %v", common.EventKind(evt.Kind), err)
			return
		}
		sess.slave.stats.events.Mark(1)
	}
}

// write encodes msg and writes it as one frame
func (sess *Session) write(endpoint string, msg common.Message) error {
	data, err := sess.slave.codec.Serialize(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", msg.MsgType, err)
	}
	return sess.conn.WriteFrame(endpoint, data)
}

// startHeartbeat (re)starts the periodic heartbeat events of this session
func (sess *Session) startHeartbeat(interval time.Duration) {
	sess.hbMu.Lock()
	defer sess.hbMu.Unlock()
	sess.stopHeartbeatLocked()

	select {
	case <-sess.done:
		return
	default:
	}

	stop := make(chan struct{})
	sess.hbStop = stop
	sess.hbWg.Add(1)

	go func() {
		defer sess.hbWg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-sess.done:
				return
			case <-ticker.C:
				beat := sess.beats.Add(1)
				if err := sess.Emit(common.EventHeartbeat, common.HeartbeatPayload{Beat: beat}.Marshal()); err != nil {
					Logger.Warningf("Stopping heartbeat for %s: %v", sess.conn.RemoteAddr(), err)
					return
				}
			}
		}
	}()
	Logger.Infof("Heartbeat every %s for %s", interval, sess.conn.RemoteAddr())
}

// stopHeartbeat stops the heartbeat goroutine and waits for it
func (sess *Session) stopHeartbeat() {
	sess.hbMu.Lock()
	defer sess.hbMu.Unlock()
	sess.stopHeartbeatLocked()
}

func (sess *Session) stopHeartbeatLocked() {
	if sess.hbStop != nil {
		close(sess.hbStop)
		sess.hbStop = nil
	}
	sess.hbWg.Wait()
}

func (sess *Session) close() {
	sess.once.Do(func() {
		close(sess.done)
	})
	sess.stopHeartbeat()
}
