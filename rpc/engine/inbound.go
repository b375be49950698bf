package engine

import (
	"errors"
	"time"

	"github.com/ValentinKolb/hRPC/rpc/common"
)

// maxReceiveBackoff caps the pause after repeated receive errors
const maxReceiveBackoff = time.Second

// runInbound is the inbound pump. It is the only goroutine reading from the
// transport and dispatches responses and events.
func (e *Engine) runInbound() error {
	backoff := e.config.PollInterval

	for {
		select {
		case <-e.stopCh:
			return nil
		default:
		}

		data, err := e.transport.Receive()
		if err != nil {
			if engineState(e.state.Load()) == stateClosed {
				return nil
			}

			e.metrics.receiveErrors.Inc()
			Logger.Warningf("Receive failed, retrying in %s: %v", backoff, err)
			if !e.sleep(backoff) {
				return nil
			}
			backoff = min(2*backoff, maxReceiveBackoff)
			continue
		}

		backoff = e.config.PollInterval
		e.dispatch(data)
	}
}

// dispatch decodes one inbound message and hands it to its owner
func (e *Engine) dispatch(data []byte) {
	var msg common.Message
	if err := e.codec.Deserialize(data, &msg); err != nil {
		e.metrics.malformed.Inc()
		Logger.Warningf("Dropping undecodable message (%d bytes): %v", len(data), err)
		return
	}

	switch msg.MsgType {
	case common.MsgTypeResponse:
		e.dispatchResponse(msg.ToResponse())
	case common.MsgTypeEvent:
		e.dispatchEvent(msg.ToEvent())
	default:
		e.metrics.malformed.Inc()
		Logger.Warningf("Dropping message of unexpected type %s", msg.MsgType)
	}
}

func (e *Engine) dispatchResponse(resp common.Response) {
	err := e.registry.resolve(resp.UID, resp)
	if errors.Is(err, ErrNoSuchTransaction) {
		// late response after a timeout, or a response we never asked for
		e.metrics.stale.Inc()
		Logger.Warningf("Dropping %s response uid=%d: %v", resp.Kind, resp.UID, err)
		return
	}

	e.metrics.resolved.Inc()
	Logger.Debugf("Resolved %s request uid=%d with %s", resp.Kind, resp.UID, resp.Status)
}

func (e *Engine) dispatchEvent(evt common.Event) {
	cb, ok := e.events.lookup(evt.Kind)
	if !ok {
		e.metrics.eventsDropped.Inc()
		Logger.Debugf("Dropping %s event, no subscriber", evt.Kind)
		return
	}

	e.metrics.eventsHandled.Inc()
	e.invokeEvent(cb, evt)
}
