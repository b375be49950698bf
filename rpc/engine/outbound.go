package engine

import (
	"github.com/ValentinKolb/hRPC/rpc/common"
)

// runOutbound is the outbound pump. It is the only consumer of the submission
// queue and the only goroutine writing to the transport.
func (e *Engine) runOutbound() error {
	queue := e.queue.Load()

	for {
		// gate: do not consume while the engine is not ready
		if engineState(e.state.Load()) != stateReady {
			if !e.sleep(e.config.PollInterval) {
				return nil
			}
			continue
		}

		select {
		case <-e.stopCh:
			return nil
		case call, ok := <-queue.Recv():
			if !ok {
				return nil
			}
			e.process(call)
		}
	}
}

// process encodes and sends one request. Any failure completes the request
// before the next one is taken from the queue.
func (e *Engine) process(call outboundCall) {
	defer e.release(call.req)

	// a sync caller may have given up while the request was queued
	if !e.registry.contains(call.uid) {
		e.metrics.abandoned.Inc()
		Logger.Debugf("Skipping %s request uid=%d, no longer pending", call.req.Kind, call.uid)
		return
	}

	data, err := e.codec.Serialize(common.NewRequestMessage(call.req, call.uid))
	if err != nil {
		Logger.Errorf("Failed to encode %s request uid=%d: %v", call.req.Kind, call.uid, err)
		e.metrics.encodeFailed.Inc()
		e.complete(call.uid, common.StatusEncodeFailed)
		return
	}

	if call.mode == modeAsync {
		e.armWatchdog(call.uid, call.timeout)
	}

	if err := e.transport.Send(data); err != nil {
		Logger.Warningf("Failed to send %s request uid=%d: %v", call.req.Kind, call.uid, err)
		e.metrics.sendFailed.Inc()
		e.complete(call.uid, common.StatusTransportSendFailed)
		return
	}

	e.metrics.sent.Inc()
	Logger.Debugf("Sent %s request uid=%d (%d bytes)", call.req.Kind, call.uid, len(data))
}

// complete finishes a request with a local status. It is a no-op when the
// request already ended, e.g. its watchdog fired in the meantime.
func (e *Engine) complete(uid uint32, status common.StatusCode) {
	if err := e.registry.fail(uid, status); err != nil {
		Logger.Debugf("Request uid=%d already completed, dropping %s", uid, status)
	}
}
